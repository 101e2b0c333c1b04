package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dhcgn/mail-campaign/report"
	"github.com/dhcgn/mail-campaign/stats"
)

const (
	DefaultDelay         = 3 * time.Second
	DefaultFailureReport = "reports/failed_contacts.csv"
	timestampLayout      = "2006-01-02 15:04:05"
)

// Suppressor reports addresses that must not be mailed.
type Suppressor interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

type Config struct {
	SenderEmail string
	SenderName  string
	// Subject defaults to "<SenderName> - Servicios que entregan valor".
	Subject  string
	Template string
	// TestMode sends every message to SenderEmail instead of the contact.
	TestMode bool
	Delay    time.Duration
	// Retries is the number of extra attempts for temporary and network failures.
	Retries      int
	RetryBackoff time.Duration
	Gmail        bool
}

func (c Config) validate() error {
	if c.SenderEmail == "" {
		return fmt.Errorf("sender email is empty")
	}
	if c.Template == "" {
		return fmt.Errorf("template is empty")
	}
	if c.Delay < 0 || c.Retries < 0 || c.RetryBackoff < 0 {
		return fmt.Errorf("delay, retries and retry backoff must not be negative")
	}
	return nil
}

func (c Config) subject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.SenderName + " - Servicios que entregan valor"
}

type Options struct {
	Transport  Transport
	Suppressor Suppressor
	Logger     *slog.Logger
	Observer   stats.Observer
}

type FailedContact struct {
	Contact Contact
	Failure Failure
	At      time.Time
}

type Result struct {
	ID      string
	Sent    int
	Skipped int
	Failed  []FailedContact
	Summary stats.Summary
}

// Campaign mails one personalized message per contact, in order.
type Campaign struct {
	cfg        Config
	transport  Transport
	suppressor Suppressor
	logger     *slog.Logger
	observer   stats.Observer
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, opts Options) (*Campaign, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport must not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Campaign{
		cfg:        cfg,
		transport:  opts.Transport,
		suppressor: opts.Suppressor,
		logger:     opts.Logger,
		observer:   opts.Observer,
		now:        time.Now,
		wait:       sleep,
	}, nil
}

// Run sends to every contact. Delivery failures are collected in the result;
// only cancellation stops the run early, returning what was done so far.
func (c *Campaign) Run(ctx context.Context, contacts []Contact) (res Result, err error) {
	res.ID = uuid.NewString()
	logger := c.logger.With("campaign", res.ID)

	collector := stats.NewCollector()
	observe := stats.Multi(collector.Observe, c.observer)
	defer func() {
		res.Summary = collector.Snapshot()
	}()

	logger.Info("campaign started", "contacts", len(contacts), "testMode", c.cfg.TestMode)

	for i, contact := range contacts {
		if err := ctx.Err(); err != nil {
			logger.Info("campaign canceled", "sent", res.Sent, "remaining", len(contacts)-i)
			return res, err
		}

		if c.suppressed(ctx, logger, contact.Email) {
			res.Skipped++
			observe(stats.Event{Stage: stats.StageCampaign, Type: stats.EventTypeSuppressed, Index: i, Recipient: contact.Email})
			logger.Info("skipping suppressed contact", "email", contact.Email)
			continue
		}

		recipient := contact.Email
		if c.cfg.TestMode {
			recipient = c.cfg.SenderEmail
		}
		logger.Info("sending", "to", recipient, "name", contact.Name, "company", contact.Company)

		if err := c.deliver(ctx, contact, recipient); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			failure := Classify(err, c.cfg.Gmail)
			res.Failed = append(res.Failed, FailedContact{Contact: contact, Failure: failure, At: c.now()})
			observe(stats.Event{Stage: stats.StageCampaign, Type: stats.EventTypeError, Index: i, Recipient: recipient, Err: err, Detail: failure.String()})
			logger.Error("send failed", "to", recipient, "kind", failure.Kind, "code", failure.Code, "error", failure.Reason)
		} else {
			res.Sent++
			observe(stats.Event{Stage: stats.StageCampaign, Type: stats.EventTypeSent, Index: i, Recipient: recipient})
			logger.Info("sent", "to", recipient)
		}

		if i < len(contacts)-1 && c.cfg.Delay > 0 {
			if err := c.wait(ctx, c.cfg.Delay); err != nil {
				return res, err
			}
		}
	}

	logger.Info("campaign finished", "sent", res.Sent, "failed", len(res.Failed), "skipped", res.Skipped)
	return res, nil
}

func (c *Campaign) suppressed(ctx context.Context, logger *slog.Logger, email string) bool {
	if c.suppressor == nil {
		return false
	}
	ok, err := c.suppressor.IsSuppressed(ctx, email)
	if err != nil {
		logger.Warn("suppression lookup failed", "email", email, "error", err)
		return false
	}
	return ok
}

func (c *Campaign) deliver(ctx context.Context, contact Contact, recipient string) error {
	msg, err := Compose(Envelope{
		FromName: c.cfg.SenderName,
		From:     c.cfg.SenderEmail,
		ToName:   contact.Name,
		To:       recipient,
		Subject:  c.cfg.subject(),
		HTML:     Render(c.cfg.Template, contact, c.cfg.SenderName),
		Date:     c.now(),
	})
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = c.transport.Send(ctx, c.cfg.SenderEmail, recipient, msg)
		if err == nil {
			return nil
		}
		if attempt >= c.cfg.Retries || !Classify(err, false).Retryable() {
			return err
		}
		c.logger.Debug("retrying send", "to", recipient, "attempt", attempt+1, "error", err)
		if waitErr := c.wait(ctx, c.cfg.RetryBackoff*time.Duration(attempt+1)); waitErr != nil {
			return errors.Join(err, waitErr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WriteFailureReport writes failed contacts with their original columns followed
// by Error and Timestamp. Parent directories are created.
func WriteFailureReport(path string, header []string, failed []FailedContact) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	cols := append(append([]string{}, header...), "Error", "Timestamp")
	rows := make([][]string, 0, len(failed))
	for _, f := range failed {
		row := make([]string, len(header), len(cols))
		copy(row, f.Contact.Record)
		row = append(row, f.Failure.String(), f.At.Format(timestampLayout))
		rows = append(rows, row)
	}
	return report.WriteTable(path, cols, rows)
}
