package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mail-campaign/model"
)

const defaultBatchSize = 50

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// Mailbox is the folder holding bounce notifications, INBOX when empty.
	Mailbox   string
	BatchSize int
}

func (o Options) mailbox() string {
	if o.Mailbox == "" {
		return "INBOX"
	}
	return o.Mailbox
}

func (o Options) validate() error {
	if o.Host == "" {
		return fmt.Errorf("imap host is empty")
	}
	if o.Port <= 0 {
		return fmt.Errorf("imap port must be positive")
	}
	return nil
}

// Source reads a remote mailbox read-only, oldest message first. Messages are
// fetched with BODY.PEEK so their \Seen flags are left alone.
type Source struct {
	opts    Options
	logger  *slog.Logger
	client  *imapclient.Client
	cleanup func()
	total   uint32
	nextSeq uint32
	pending []model.Message
}

// Open connects, logs in and selects the mailbox. The caller must Close the Source.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	s := &Source{opts: opts, logger: logger, nextSeq: 1}
	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client = client
	s.cleanup = cleanup

	data, err := client.Select(opts.mailbox(), &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("select mailbox %s: %w", opts.mailbox(), err)
	}
	s.total = data.NumMessages
	logger.Debug("imap mailbox selected", "mailbox", opts.mailbox(), "messages", s.total)

	return s, nil
}

// Len returns the number of messages in the selected mailbox.
func (s *Source) Len() int {
	return int(s.total)
}

func (s *Source) Next(ctx context.Context) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	if len(s.pending) == 0 {
		if s.nextSeq > s.total {
			return model.Message{}, io.EOF
		}
		if err := s.fetchBatch(); err != nil {
			return model.Message{}, err
		}
		if len(s.pending) == 0 {
			return model.Message{}, io.EOF
		}
	}

	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, nil
}

func (s *Source) fetchBatch() error {
	from := s.nextSeq
	to := from + uint32(s.opts.BatchSize) - 1
	if to > s.total {
		to = s.total
	}
	s.nextSeq = to + 1

	var seq imapv2.SeqSet
	seq.AddRange(from, to)
	section := &imapv2.FetchItemBodySection{Peek: true}
	messages, err := s.client.Fetch(seq, &imapv2.FetchOptions{
		BodySection: []*imapv2.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return fmt.Errorf("fetch messages %d:%d: %w", from, to, err)
	}

	for _, buf := range messages {
		raw := buf.FindBodySection(section)
		s.pending = append(s.pending, model.NewMessage(int(buf.SeqNum)-1, raw))
	}
	return nil
}

// Close logs out and closes the connection. It is safe to call more than once.
func (s *Source) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return nil
}

func (s *Source) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "tls", s.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}
