package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-campaign/campaign"
	"github.com/dhcgn/mail-campaign/settings"
)

func scanCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := &cobra.Command{Use: "scan-bounces"}
	RegisterCommonFlags(cmd)
	require.NoError(t, RegisterScanFlags(cmd))
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func sendCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := &cobra.Command{Use: "send"}
	RegisterCommonFlags(cmd)
	RegisterSendFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadScan(t *testing.T) {
	cmd := scanCommand(t,
		"--mbox", "bounces.mbox",
		"--include-header", `(?i)^subject: .{2,5}`,
		"--include-header", "x",
		"--ignore-address", "me@example.com",
		"--log-level", "WARNING",
	)

	cfg, err := LoadScan(cmd)
	require.NoError(t, err)
	assert.Equal(t, "bounces.mbox", cfg.MboxPath)
	assert.Equal(t, []string{`(?i)^subject: .{2,5}`, "x"}, cfg.IncludeHeader)
	assert.Equal(t, []string{"me@example.com"}, cfg.IgnoreAddresses)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Top)
	assert.Contains(t, cfg.StateDir, ".mail-campaign")
}

func TestLoadScan_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", nil, "exactly one of --mbox or --imap-host"},
		{"both sources", []string{"--mbox", "a", "--imap-host", "h"}, "exactly one of"},
		{"imap without user", []string{"--imap-host", "h"}, "--imap-user"},
		{"imap without password", []string{"--imap-host", "h", "--imap-user", "u"}, "IMAP password"},
		{"include and exclude", []string{"--mbox", "a", "--bounces-only", "--exclude-body", "x"}, "mutually exclusive"},
		{"bad log level", []string{"--mbox", "a", "--log-level", "loud"}, "invalid --log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("IMAP_PASS", "")
			_, err := LoadScan(scanCommand(t, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScan_IMAPPasswordFromEnv(t *testing.T) {
	t.Setenv("IMAP_PASS", "from-env")
	cfg, err := LoadScan(scanCommand(t, "--imap-host", "imap.example.com", "--imap-user", "u"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.IMAP.Pass)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
}

func TestLoadScan_ConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mbox: from-file.mbox\ntop: 3\nextra-rule:\n  - 'Bounced: (\\S+)'\n"), 0o600))

	cmd := scanCommand(t, "--config", path)
	t.Setenv("MAIL_CAMPAIGN_OUTPUT", "env.csv")

	cfg, err := LoadScan(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-file.mbox", cfg.MboxPath)
	assert.Equal(t, 3, cfg.Top)
	assert.Equal(t, []string{`Bounced: (\S+)`}, cfg.ExtraRules)
	assert.Equal(t, "env.csv", cfg.Output)
	assert.Equal(t, path, cfg.ConfigFile)

	flagWins := scanCommand(t, "--config", path, "--mbox", "flag.mbox")
	cfg, err = LoadScan(flagWins)
	require.NoError(t, err)
	assert.Equal(t, "flag.mbox", cfg.MboxPath)
}

func TestLoadScan_MissingExplicitConfig(t *testing.T) {
	_, err := LoadScan(scanCommand(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--mbox", "a"))
	assert.Error(t, err)
}

func TestLoadSend(t *testing.T) {
	cmd := sendCommand(t,
		"--contacts", "contacts.csv",
		"--template", "body.html",
		"--sender-email", "me@example.com",
		"--password", "secret",
		"--smtp-server", "smtp.example.com",
		"--smtp-port", "587",
		"--security", "starttls",
		"--delay", "1s",
		"--settings-file", "",
	)

	cfg, err := LoadSend(cmd)
	require.NoError(t, err)
	assert.Equal(t, campaign.SecuritySTARTTLS, cfg.Security)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, time.Second, cfg.Delay)
	assert.Equal(t, campaign.DefaultColumns, cfg.Columns)
	assert.Equal(t, campaign.DefaultFailureReport, cfg.FailureReport)
	assert.Equal(t, "secret", cfg.Secret())
}

func TestLoadSend_FallsBackToSettings(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, ".creds")
	require.NoError(t, settings.Save(credsPath, settings.Settings{
		Email:        "saved@example.com",
		AppPassword:  "app-pass",
		SenderName:   "Saved",
		SMTPServer:   "smtp.gmail.com",
		SMTPPort:     587,
		Gmail:        true,
		LastContacts: filepath.Join(dir, "contacts.csv"),
		LastTemplate: filepath.Join(dir, "body.html"),
	}))

	cfg, err := LoadSend(sendCommand(t, "--settings-file", credsPath, "--sender-name", "Flag"))
	require.NoError(t, err)
	assert.Equal(t, "saved@example.com", cfg.SenderEmail)
	assert.Equal(t, "Flag", cfg.SenderName)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.True(t, cfg.Gmail)
	assert.Equal(t, "app-pass", cfg.Secret())
	assert.Equal(t, filepath.Join(dir, "contacts.csv"), cfg.Contacts)

	cfg, err = LoadSend(sendCommand(t, "--settings-file", credsPath, "--smtp-port", "465"))
	require.NoError(t, err)
	assert.Equal(t, 465, cfg.SMTPPort)
}

func TestLoadSend_Validation(t *testing.T) {
	base := []string{"--settings-file", "", "--contacts", "c.csv", "--template", "t.html", "--sender-email", "me@example.com", "--smtp-server", "smtp.example.com"}
	tests := []struct {
		name  string
		extra []string
		want  string
	}{
		{"no password", nil, "SMTP password"},
		{"gmail port", []string{"--password", "x", "--gmail", "--smtp-port", "25"}, "Gmail requires"},
		{"bad security", []string{"--password", "x", "--security", "rot13"}, "unknown smtp security"},
		{"negative delay", []string{"--password", "x", "--delay=-1s"}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMTP_PASS", "")
			_, err := LoadSend(sendCommand(t, append(append([]string{}, base...), tt.extra...)...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadSend(sendCommand(t, "--settings-file", ""))
	assert.ErrorContains(t, err, "--contacts")
}

func TestSend_Settings(t *testing.T) {
	s := Send{SenderEmail: "me@example.com", SMTPServer: "smtp.example.com", SMTPPort: 465, Contacts: "c.csv"}.Settings()
	assert.Equal(t, "me@example.com", s.Email)
	assert.Equal(t, "c.csv", s.LastContacts)
}

func settingsCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := &cobra.Command{Use: "save"}
	RegisterCommonFlags(cmd)
	RegisterSettingsFileFlag(cmd)
	RegisterSettingsFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadSettingsUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".creds")
	require.NoError(t, settings.Save(path, settings.Settings{
		Email:      "old@example.com",
		SenderName: "Old",
		SMTPServer: "mail.example.com",
		SMTPPort:   587,
	}))

	update, err := LoadSettingsUpdate(settingsCommand(t, "--settings-file", path, "--gmail", "--smtp-server", "smtp.gmail.com", "--smtp-port", "465"))
	require.NoError(t, err)
	assert.Equal(t, path, update.Path)
	assert.Equal(t, "old@example.com", update.Values.Email)
	assert.Equal(t, "Old", update.Values.SenderName)
	assert.True(t, update.Values.Gmail)
	assert.Equal(t, "smtp.gmail.com", update.Values.SMTPServer)
	assert.Equal(t, 465, update.Values.SMTPPort)
	assert.Equal(t, "mail.example.com", update.Values.PreviousSMTPServer)
	assert.Equal(t, 587, update.Values.PreviousSMTPPort)
}

func TestLoadSettingsUpdate_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".creds")

	_, err := LoadSettingsUpdate(settingsCommand(t, "--settings-file", path))
	assert.ErrorContains(t, err, "--sender-email")

	_, err = LoadSettingsUpdate(settingsCommand(t, "--settings-file", path, "--sender-email", "a@b.org", "--gmail", "--smtp-port", "25"))
	assert.ErrorIs(t, err, campaign.ErrGmailPort)

	update, err := LoadSettingsUpdate(settingsCommand(t, "--settings-file", path, "--sender-email", "a@b.org"))
	require.NoError(t, err)
	assert.Equal(t, 465, update.Values.SMTPPort)
	assert.Empty(t, update.Values.PreviousSMTPServer)
}

func TestLoadSuppression(t *testing.T) {
	cmd := &cobra.Command{Use: "list"}
	t.Setenv("HOME", t.TempDir())
	RegisterCommonFlags(cmd)
	require.NoError(t, RegisterSuppressionFlags(cmd))
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := LoadSuppression(cmd)
	require.NoError(t, err)
	assert.Equal(t, "suppression.db", filepath.Base(cfg.DB))
	assert.Contains(t, cfg.DB, ".mail-campaign")
}
