package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mail-campaign/model"
)

var ErrPathEmpty = errors.New("mbox path is empty")

// Reader iterates the messages of a single-file mbox archive in file order.
type Reader struct {
	path   string
	closer io.Closer
	mr     *mboxlib.Reader
	next   int
}

// Open opens the archive at path. The caller must Close the returned reader.
func Open(path string) (*Reader, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathEmpty
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}

	return &Reader{
		path:   path,
		closer: file,
		mr:     mboxlib.NewReader(file),
	}, nil
}

// NewReader reads an archive from r. Close is a no-op for readers created this way.
func NewReader(r io.Reader) *Reader {
	return &Reader{mr: mboxlib.NewReader(r)}
}

func (r *Reader) Path() string {
	return r.path
}

// Next returns the next message, or io.EOF once the archive is exhausted.
func (r *Reader) Next(ctx context.Context) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	msgReader, err := r.mr.NextMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Message{}, io.EOF
		}
		return model.Message{}, fmt.Errorf("message %d: %w", r.next, err)
	}

	raw, err := io.ReadAll(msgReader)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %d read: %w", r.next, err)
	}

	msg := model.NewMessage(r.next, raw)
	r.next++
	return msg, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		// Unreadable bodies still count; the scanner reports them.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
