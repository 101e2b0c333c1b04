package campaign

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Transport delivers one composed message to one recipient.
type Transport interface {
	Send(ctx context.Context, from, to string, msg []byte) error
}

// Security selects how the SMTP connection is protected.
type Security string

const (
	// SecurityAuto uses STARTTLS on port 587 and implicit TLS everywhere else.
	SecurityAuto     Security = "auto"
	SecurityTLS      Security = "ssl"
	SecuritySTARTTLS Security = "starttls"
	// SecurityNone sends in clear text. Only meant for local relays.
	SecurityNone Security = "none"
)

var ErrGmailPort = errors.New("Gmail requires port 465 (SSL) or 587 (TLS)")

// ParseSecurity accepts the names used in config files and flags.
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SecurityAuto, nil
	case "ssl", "tls", "implicit":
		return SecurityTLS, nil
	case "starttls":
		return SecuritySTARTTLS, nil
	case "none", "plain":
		return SecurityNone, nil
	default:
		return "", fmt.Errorf("unknown smtp security %q", s)
	}
}

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security
	// Gmail restricts ports to 465 and 587.
	Gmail              bool
	Timeout            time.Duration
	InsecureSkipVerify bool
	// LocalName is announced in EHLO. go-smtp sends localhost when empty.
	LocalName string
}

// SMTPTransport opens one authenticated connection per message.
type SMTPTransport struct {
	opts SMTPOptions
}

func NewSMTPTransport(opts SMTPOptions) (*SMTPTransport, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	if opts.Gmail && opts.Port != 465 && opts.Port != 587 {
		return nil, ErrGmailPort
	}
	if opts.Security == "" {
		opts.Security = SecurityAuto
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SMTPTransport{opts: opts}, nil
}

// security resolves SecurityAuto against the configured port.
func (t *SMTPTransport) security() Security {
	if t.opts.Security != SecurityAuto {
		return t.opts.Security
	}
	if t.opts.Port == 587 {
		return SecuritySTARTTLS
	}
	return SecurityTLS
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         t.opts.Host,
		InsecureSkipVerify: t.opts.InsecureSkipVerify,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, from, to string, msg []byte) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stopClose()

	if t.opts.LocalName != "" {
		if err := client.Hello(t.opts.LocalName); err != nil {
			return fmt.Errorf("smtp hello: %w", err)
		}
	}

	if t.security() == SecuritySTARTTLS {
		if err := client.StartTLS(t.tlsConfig()); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if t.opts.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.opts.Username, t.opts.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))
	dialer := &net.Dialer{Timeout: t.opts.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.security() == SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("dial smtp %s: %w", address, err)
	}

	deadline := time.Now().Add(t.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, t.opts.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting %s: %w", address, err)
	}
	return client, nil
}
