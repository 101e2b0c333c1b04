package bounce

import (
	"fmt"
	"sort"
	"strings"
)

// ParserOptions extends the default rule set.
type ParserOptions struct {
	// ExtraRules are additional patterns with one capture group each.
	ExtraRules []string
	// Ignore lists addresses that are never reported, e.g. the campaign sender.
	Ignore []string
}

// Parser applies an ordered rule list to bounce text.
type Parser struct {
	rules  []Rule
	ignore map[string]struct{}
}

// NewParser builds a Parser from DefaultRules plus opts.
func NewParser(opts ParserOptions) (*Parser, error) {
	rules := make([]Rule, 0, len(DefaultRules)+len(opts.ExtraRules))
	rules = append(rules, DefaultRules...)

	for i, pattern := range opts.ExtraRules {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		rule, err := NewRule(fmt.Sprintf("extra-%d", i+1), pattern)
		if err != nil {
			return nil, fmt.Errorf("extra rule: %w", err)
		}
		rules = append(rules, rule)
	}

	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, addr := range opts.Ignore {
		if addr = Normalize(strings.TrimSpace(addr)); addr != "" {
			ignore[addr] = struct{}{}
		}
	}

	return &Parser{rules: rules, ignore: ignore}, nil
}

// DefaultParser returns a Parser using only DefaultRules.
func DefaultParser() *Parser {
	return &Parser{rules: DefaultRules}
}

// Parse extracts rejected addresses from text with DefaultRules.
func Parse(text string) AddressSet {
	return DefaultParser().Parse(text)
}

// Rules returns the rule names in evaluation order.
func (p *Parser) Rules() []string {
	names := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		names = append(names, r.Name)
	}
	return names
}

// Parse returns the accepted addresses found in text.
func (p *Parser) Parse(text string) AddressSet {
	set, _ := p.ParseWithHits(text)
	return set
}

// ParseWithHits is Parse plus the number of accepted candidates per rule name.
func (p *Parser) ParseWithHits(text string) (AddressSet, map[string]int) {
	found := make(AddressSet)
	if text == "" {
		return found, nil
	}

	hits := make(map[string]int)
	for _, rule := range p.rules {
		for _, candidate := range rule.Candidates(text) {
			addr := Normalize(candidate)
			if !p.Keep(addr) {
				continue
			}
			found.Add(addr)
			hits[rule.Name]++
		}
	}
	return found, hits
}

// Keep reports whether a normalized address passes Accept and is not ignored.
func (p *Parser) Keep(addr string) bool {
	if !Accept(addr) {
		return false
	}
	_, ignored := p.ignore[addr]
	return !ignored
}

// Fingerprint identifies the rule patterns and ignore list. Parsers with equal
// fingerprints produce equal results for the same text.
func (p *Parser) Fingerprint() string {
	var sb strings.Builder
	for _, r := range p.rules {
		sb.WriteString(r.Pattern.String())
		sb.WriteByte(0)
	}
	sb.WriteByte(1)
	ignored := make([]string, 0, len(p.ignore))
	for addr := range p.ignore {
		ignored = append(ignored, addr)
	}
	sort.Strings(ignored)
	sb.WriteString(strings.Join(ignored, "\x00"))
	return sb.String()
}
