package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-campaign/config"
	"github.com/dhcgn/mail-campaign/scanner"
	"github.com/dhcgn/mail-campaign/settings"
	"github.com/dhcgn/mail-campaign/suppression"
)

func TestSetupLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := setupLogger(config.Common{LogLevel: "warn"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "level=WARN msg=shown")
}

func TestSetupLogger_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, cleanup, err := setupLogger(config.Common{LogLevel: "debug", LogDir: dir}, &buf)
	require.NoError(t, err)

	logger.Debug("to both")
	require.NoError(t, cleanup())

	files, err := filepath.Glob(filepath.Join(dir, "mail-campaign-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestPrintRuleHits(t *testing.T) {
	var buf bytes.Buffer
	printRuleHits(&buf, []string{"a", "b", "c"}, map[string]int{"b": 4, "c": 1})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Extraction rule hits:", lines[0])
	assert.Equal(t, "  ✓ b: 4 hits", lines[1])
	assert.Equal(t, "  ✓ c: 1 hits", lines[2])
	assert.Equal(t, "  ✗ a: 0 hits", lines[3])
}

func TestSettingsTable_MasksSecrets(t *testing.T) {
	data := settingsTable(settings.Settings{
		Email:              "me@example.com",
		Password:           "hunter22",
		SMTPServer:         "smtp.example.com",
		SMTPPort:           465,
		PreviousSMTPServer: "mail.example.com",
		PreviousSMTPPort:   587,
	})

	flat := make(map[string]string)
	for _, row := range data[1:] {
		flat[row[0]] = row[1]
	}
	assert.Equal(t, "******22", flat["Password"])
	assert.Equal(t, "", flat["App password"])
	assert.Equal(t, "465", flat["SMTP port"])
	assert.Equal(t, "mail.example.com:587", flat["Previous SMTP"])
}

func TestEntriesTable(t *testing.T) {
	data := entriesTable([]suppression.Entry{{Email: "a@b.org", Source: "bounces.mbox"}})
	require.Len(t, data, 2)
	assert.Equal(t, []string{"Email", "Source", "Added"}, data[0])
	assert.Equal(t, "a@b.org", data[1][0])
}

func closedIMAPConfig(t *testing.T) config.Scan {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	var cfg config.Scan
	cfg.IMAP = config.IMAP{Host: "127.0.0.1", Port: port, User: "u", Pass: "p", Mailbox: "INBOX"}
	return cfg
}

func TestOpenIMAP_ConnectionFailureIsOpenError(t *testing.T) {
	cfg := closedIMAPConfig(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	_, err := openIMAP(context.Background(), cfg, "imap://127.0.0.1/INBOX", logger)
	var openErr *scanner.ArchiveOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "imap://127.0.0.1/INBOX", openErr.Path)
}

func TestOpenIMAP_CanceledIsNotOpenError(t *testing.T) {
	cfg := closedIMAPConfig(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := openIMAP(ctx, cfg, "imap://127.0.0.1/INBOX", logger)
	require.ErrorIs(t, err, context.Canceled)
	var openErr *scanner.ArchiveOpenError
	assert.False(t, errors.As(err, &openErr))
}
