package suppression

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dhcgn/mail-campaign/bounce"
)

// Entry is one address that must not be mailed again.
type Entry struct {
	Email     string    `db:"email"`
	Source    string    `db:"source"`
	RunID     string    `db:"run_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Store keeps the suppression list in a SQLite database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies pending migrations.
// ":memory:" gives a private in-memory list.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("suppression database path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Add records addresses under source and runID. Addresses are normalized;
// ones already present keep their first record. It returns how many were new.
func (s *Store) Add(ctx context.Context, source, runID string, addresses []string) (int, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT OR IGNORE INTO suppressed (email, source, run_id, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	added := 0
	for _, addr := range addresses {
		addr = bounce.Normalize(strings.TrimSpace(addr))
		if !bounce.Accept(addr) {
			continue
		}
		res, err := stmt.ExecContext(ctx, addr, source, runID, now)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", addr, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return added, nil
}

// IsSuppressed reports whether email is on the list, ignoring case.
func (s *Store) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM suppressed WHERE email = ?`, bounce.Normalize(strings.TrimSpace(email)))
	if err != nil {
		return false, fmt.Errorf("querying suppression: %w", err)
	}
	return n > 0, nil
}

// List returns all entries ordered by address.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries,
		`SELECT email, source, run_id, created_at FROM suppressed ORDER BY email`); err != nil {
		return nil, fmt.Errorf("listing suppressed addresses: %w", err)
	}
	return entries, nil
}

// Remove deletes email from the list and reports whether it was present.
func (s *Store) Remove(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppressed WHERE email = ?`, bounce.Normalize(strings.TrimSpace(email)))
	if err != nil {
		return false, fmt.Errorf("removing %s: %w", email, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing %s: %w", email, err)
	}
	return n > 0, nil
}
