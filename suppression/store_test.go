package suppression

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_AddAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, "bounces.mbox", "run-1", []string{"A@Example.com", "b@example.com", "not-an-address", "mailer-daemon@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.Add(ctx, "later.csv", "run-2", []string{"a@example.com", "c@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	ok, err := s.IsSuppressed(ctx, " A@EXAMPLE.COM ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsSuppressed(ctx, "z@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a@example.com", entries[0].Email)
	assert.Equal(t, "bounces.mbox", entries[0].Source)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.True(t, entries[0].CreatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "c@example.com", entries[2].Email)
}

func TestStore_Remove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "manual", "", []string{"a@example.com"})
	require.NoError(t, err)

	removed, err := s.Remove(ctx, "A@example.com")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_AddEmpty(t *testing.T) {
	added, err := openTestStore(t).Add(context.Background(), "x", "", nil)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppression.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(ctx, "x", "", []string{"keep@example.com"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.IsSuppressed(ctx, "keep@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	var version int
	require.NoError(t, s.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}
