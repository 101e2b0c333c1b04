// Package settings persists the sender profile between runs.
//
// The file is base64 encoded JSON. This keeps credentials from being read at a
// glance and nothing more: anyone with access to the file can decode it.
package settings

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultFile is created in the working directory.
const DefaultFile = ".creds"

var (
	ErrEmpty     = errors.New("settings data cannot be empty")
	ErrNoContent = errors.New("encoded settings cannot be empty")
)

type Settings struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	AppPassword        string `json:"app_password"`
	SenderName         string `json:"sender_name"`
	SMTPServer         string `json:"smtp_server"`
	SMTPPort           int    `json:"smtp_port"`
	PreviousSMTPServer string `json:"previous_smtp_server"`
	PreviousSMTPPort   int    `json:"previous_smtp_port"`
	Gmail              bool   `json:"is_gmail"`
	// LastContacts and LastTemplate are stored as absolute paths.
	LastContacts string `json:"last_excel_file"`
	LastTemplate string `json:"last_html_file"`
}

func (s Settings) IsZero() bool {
	return s == Settings{}
}

// Secret returns the credential used for SMTP auth: the app password in Gmail
// mode, the account password otherwise.
func (s Settings) Secret() string {
	if s.Gmail && s.AppPassword != "" {
		return s.AppPassword
	}
	return s.Password
}

// Encode serializes s to the on-disk form.
func Encode(s Settings) (string, error) {
	if s.IsZero() {
		return "", ErrEmpty
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses the on-disk form.
func Decode(encoded string) (Settings, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Settings{}, ErrNoContent
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Settings{}, fmt.Errorf("decoding failed: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decoding failed: %w", err)
	}
	return s, nil
}

// Load reads path. A missing file yields zero Settings and no error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	s, err := Decode(string(data))
	if err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, storing file references as absolute paths.
func Save(path string, s Settings) error {
	var err error
	if s.LastContacts, err = AbsolutePath(s.LastContacts); err != nil {
		return err
	}
	if s.LastTemplate, err = AbsolutePath(s.LastTemplate); err != nil {
		return err
	}

	encoded, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("restrict settings permissions: %w", err)
		}
	}
	return nil
}

// AbsolutePath resolves p against the working directory. Empty stays empty.
func AbsolutePath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

// DisplayPath shows p relative to the working directory when that is shorter.
func DisplayPath(p string) string {
	if p == "" {
		return ""
	}
	rel, err := filepath.Rel(mustGetwd(), p)
	if err != nil || len(rel) >= len(p) {
		return p
	}
	return rel
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Mask hides all but the last two characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 2 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-2) + secret[len(secret)-2:]
}
