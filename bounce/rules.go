package bounce

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule extracts address-like candidates from bounce text. Pattern has exactly
// one capture group holding the candidate.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// NewRule compiles pattern into a Rule.
func NewRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile %q: %w", pattern, err)
	}
	if re.NumSubexp() != 1 {
		return Rule{}, fmt.Errorf("rule %q: pattern must have exactly one capture group, has %d", name, re.NumSubexp())
	}
	return Rule{Name: name, Pattern: re}, nil
}

func mustRule(name, pattern string) Rule {
	r, err := NewRule(name, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// Candidates returns every captured substring, in match order, before normalization.
func (r Rule) Candidates(text string) []string {
	matches := r.Pattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// DefaultRules is the fixed extraction rule set. Rules are not exclusive: one
// blob may match several rules, several times each.
//
// to-header over-approximates: it also matches the campaign's own address when a
// bounce quotes the original headers. Use ParserOptions.Ignore to drop it.
var DefaultRules = []Rule{
	mustRule("failed-bracket", `(?i)failed:\s*\n\n\[([^\]]+)\]`),
	mustRule("rcpt-to", `(?i)RCPT TO\s*[<:]+([^\s>:]+)`),
	mustRule("original-recipient", `(?i)Original-Recipient:\s*rfc822;\s*([^\s]+)`),
	mustRule("final-recipient", `(?i)Final-Recipient:\s*rfc822;\s*([^\s]+)`),
	mustRule("to-header", `(?i)To:\s*([^\s<]+@[^\s>]+)`),
	mustRule("angle-bracket", `<([^>]+@[^>]+)>`),
}

// infrastructure marks sender addresses of mail systems, never rejected recipients.
var infrastructure = []string{"mailer-daemon", "postmaster"}

// Normalize strips surrounding <, > and : characters and lower-cases the result.
func Normalize(candidate string) string {
	return strings.ToLower(strings.Trim(candidate, "<>:"))
}

// Accept reports whether a normalized candidate is a rejected recipient address.
func Accept(addr string) bool {
	if !strings.Contains(addr, "@") {
		return false
	}
	for _, marker := range infrastructure {
		if strings.Contains(addr, marker) {
			return false
		}
	}
	return true
}
