package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/mail-campaign/model"
)

// BounceHeaderPatterns select messages that look like delivery failure notifications.
var BounceHeaderPatterns = []string{
	`(?im)^from:.*(mailer-daemon|postmaster)`,
	`(?im)^subject:.*(undeliver|delivery status|returned mail|delivery failure|failure notice)`,
	`(?im)^content-type:\s*multipart/report`,
}

// Options captures the pre-filter configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
	// BouncesOnly adds BounceHeaderPatterns to IncludeHeader.
	BouncesOnly bool
}

func (o Options) Active() bool {
	return o.BouncesOnly || len(o.IncludeHeader) > 0 || len(o.IncludeBody) > 0 ||
		len(o.ExcludeHeader) > 0 || len(o.ExcludeBody) > 0
}

type pattern struct {
	label string
	body  bool
	re    *regexp.Regexp
}

// Filter decides which archive messages reach the bounce parser.
type Filter struct {
	include []pattern
	exclude []pattern

	mu   sync.Mutex
	hits map[string]int
}

func New(opts Options) (*Filter, error) {
	includeHeaders := opts.IncludeHeader
	if opts.BouncesOnly {
		includeHeaders = append(append([]string{}, BounceHeaderPatterns...), includeHeaders...)
	}

	f := &Filter{hits: make(map[string]int)}
	groups := []struct {
		name     string
		patterns []string
		dst      *[]pattern
	}{
		{"include-header", includeHeaders, &f.include},
		{"include-body", opts.IncludeBody, &f.include},
		{"exclude-header", opts.ExcludeHeader, &f.exclude},
		{"exclude-body", opts.ExcludeBody, &f.exclude},
	}
	for _, g := range groups {
		compiled, err := compilePatterns(g.name, g.patterns)
		if err != nil {
			return nil, err
		}
		*g.dst = append(*g.dst, compiled...)
	}

	if len(f.include) > 0 && len(f.exclude) > 0 {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}
	return f, nil
}

// Allows reports whether msg passes the filter and records which pattern decided it.
func (f *Filter) Allows(msg model.Message) bool {
	if len(f.include) == 0 && len(f.exclude) == 0 {
		return true
	}

	header, body := SplitRawMessage(msg.Raw)
	if len(f.include) > 0 {
		if label, ok := f.match(f.include, header, body); ok {
			f.hit(label)
			return true
		}
		return false
	}

	if label, ok := f.match(f.exclude, header, body); ok {
		f.hit(label)
		return false
	}
	return true
}

// Hits returns a copy of the per-pattern decision counts.
func (f *Filter) Hits() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.hits))
	for k, v := range f.hits {
		out[k] = v
	}
	return out
}

func (f *Filter) match(patterns []pattern, header, body []byte) (string, bool) {
	for _, p := range patterns {
		target := header
		if p.body {
			target = body
		}
		if p.re.Match(target) {
			return p.label, true
		}
	}
	return "", false
}

func (f *Filter) hit(label string) {
	f.mu.Lock()
	f.hits[label]++
	f.mu.Unlock()
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(group string, patterns []string) ([]pattern, error) {
	compiled := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", group, p, err)
		}
		compiled = append(compiled, pattern{
			label: group + " " + p,
			body:  strings.HasSuffix(group, "-body"),
			re:    re,
		})
	}
	return compiled, nil
}
