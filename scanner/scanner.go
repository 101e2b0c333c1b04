package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dhcgn/mail-campaign/bounce"
	"github.com/dhcgn/mail-campaign/filter"
	"github.com/dhcgn/mail-campaign/mbox"
	"github.com/dhcgn/mail-campaign/model"
	"github.com/dhcgn/mail-campaign/state"
	"github.com/dhcgn/mail-campaign/stats"
)

// Source yields archive messages in order and returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (model.Message, error)
	Close() error
}

// Options configures a Scanner. Zero values select the defaults.
type Options struct {
	Logger    *slog.Logger
	Extractor *bounce.Extractor
	Parser    *bounce.Parser
	// Filter and Cache are optional.
	Filter   *filter.Filter
	Cache    state.Cache
	Observer stats.Observer
}

// Scanner turns archives of bounce messages into rejected address sets.
type Scanner struct {
	logger    *slog.Logger
	extractor *bounce.Extractor
	parser    *bounce.Parser
	filter    *filter.Filter
	cache     state.Cache
	observer  stats.Observer
	// cacheTag separates cache entries of differently configured scanners.
	cacheTag string
}

// Result is the outcome of one scan.
type Result struct {
	Addresses bounce.AddressSet
	Summary   stats.Summary
	// RuleHits counts accepted addresses per parser rule, cached messages excluded.
	RuleHits map[string]int
}

// New returns a Scanner for opts.
func New(opts Options) *Scanner {
	s := &Scanner{
		logger:    opts.Logger,
		extractor: opts.Extractor,
		parser:    opts.Parser,
		filter:    opts.Filter,
		cache:     opts.Cache,
		observer:  opts.Observer,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.extractor == nil {
		s.extractor = bounce.NewExtractor()
	}
	if s.parser == nil {
		s.parser = bounce.DefaultParser()
	}
	s.cacheTag = configTag(s.parser, s.extractor)
	return s
}

// configTag hashes everything that changes what a message parses to.
func configTag(p *bounce.Parser, e *bounce.Extractor) string {
	h := sha256.New()
	io.WriteString(h, p.Fingerprint())
	h.Write([]byte{0})
	io.WriteString(h, strings.Join(e.ContentTypes(), ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (s *Scanner) cacheKey(msg model.Message) string {
	return msg.Hash + ":" + s.cacheTag
}

// ScanMbox opens the mbox archive at path and scans it.
func (s *Scanner) ScanMbox(ctx context.Context, path string) (Result, error) {
	reader, err := mbox.Open(path)
	if err != nil {
		return Result{}, &ArchiveOpenError{Path: path, Err: err}
	}
	return s.scan(ctx, path, reader)
}

// Scan drains src and unions the rejected addresses of every message. The
// source is closed before Scan returns. On cancellation the partial result is
// returned together with the context error.
func (s *Scanner) Scan(ctx context.Context, src Source) (Result, error) {
	return s.scan(ctx, "", src)
}

func (s *Scanner) scan(ctx context.Context, name string, src Source) (res Result, err error) {
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			s.logger.Warn("close archive", "path", name, "error", closeErr)
		}
	}()

	collector := stats.NewCollector()
	observe := stats.Multi(collector.Observe, s.observer)
	res = Result{
		Addresses: bounce.NewAddressSet(),
		RuleHits:  make(map[string]int),
	}
	defer func() {
		res.Summary = collector.Snapshot()
	}()

	for count := 0; ; count++ {
		if err := ctx.Err(); err != nil {
			s.logger.Info("scan canceled", "path", name, "scanned", count)
			return res, err
		}

		msg, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if count == 0 {
				return Result{}, &ArchiveOpenError{Path: name, Err: err}
			}
			return res, fmt.Errorf("read archive: %w", err)
		}

		observe(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeScanned, Index: msg.Index, MessageID: msg.ID})
		s.process(msg, &res, observe)
	}

	s.logger.Debug("scan finished", "path", name, "unique", res.Addresses.Len())
	return res, nil
}

func (s *Scanner) process(msg model.Message, res *Result, observe stats.Observer) {
	if s.filter != nil && !s.filter.Allows(msg) {
		observe(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeFiltered, Index: msg.Index, MessageID: msg.ID})
		return
	}

	if s.cache != nil {
		if addrs, ok := s.cache.Lookup(s.cacheKey(msg)); ok {
			found := 0
			for _, a := range addrs {
				if s.parser.Keep(a) {
					res.Addresses.Add(a)
					found++
				}
			}
			observe(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeCached, Index: msg.Index, MessageID: msg.ID, Found: found, Total: res.Addresses.Len()})
			return
		}
	}

	found, hits, err := s.parseMessage(msg)
	if err != nil {
		s.logger.Warn("message processing failed", "index", msg.Index, "messageID", msg.ID, "error", err)
		observe(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Index: msg.Index, MessageID: msg.ID, Err: err})
	}
	for rule, n := range hits {
		res.RuleHits[rule] += n
	}
	res.Addresses.Union(found)

	if err == nil && s.cache != nil {
		if cacheErr := s.cache.Store(s.cacheKey(msg), msg.ID, found.Sorted()); cacheErr != nil {
			s.logger.Warn("scan cache write failed", "index", msg.Index, "error", cacheErr)
		}
	}

	observe(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeParsed, Index: msg.Index, MessageID: msg.ID, Found: found.Len(), Total: res.Addresses.Len()})
}

// parseMessage extracts and parses one message. Text recovered before a
// decoding failure is still parsed.
func (s *Scanner) parseMessage(msg model.Message) (found bounce.AddressSet, hits map[string]int, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = bounce.NewAddressSet()
			hits = nil
			err = &bounce.MessageProcessingError{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	text, err := s.extractor.Extract(msg.Raw)
	found, hits = s.parser.ParseWithHits(text)
	return found, hits, err
}
