package campaign

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope describes one outgoing campaign message.
type Envelope struct {
	FromName string
	From     string
	ToName   string
	To       string
	Subject  string
	HTML     string
	Date     time.Time
}

// Compose renders env as a single-part quoted-printable HTML message.
func Compose(env Envelope) ([]byte, error) {
	if env.From == "" || env.To == "" {
		return nil, fmt.Errorf("compose: sender and recipient are required")
	}
	if env.Date.IsZero() {
		env.Date = time.Now()
	}

	var h mail.Header
	h.SetDate(env.Date)
	h.SetAddressList("From", []*mail.Address{{Name: env.FromName, Address: env.From}})
	h.SetAddressList("To", []*mail.Address{{Name: env.ToName, Address: env.To}})
	h.SetSubject(env.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("compose: message id: %w", err)
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if _, err := io.WriteString(w, env.HTML); err != nil {
		return nil, fmt.Errorf("compose: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compose: close body: %w", err)
	}
	return buf.Bytes(), nil
}
