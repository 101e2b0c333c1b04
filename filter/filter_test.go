package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-campaign/model"
)

func msg(raw string) model.Message {
	return model.Message{Raw: []byte(raw)}
}

func TestFilter_Allows(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		raw  string
		want bool
	}{
		{"no filters", Options{}, "Subject: Any\n\nbody", true},
		{"include header match", Options{IncludeHeader: []string{"Subject: Test"}}, "Subject: Test Message\n\nbody", true},
		{"include header miss", Options{IncludeHeader: []string{"Subject: Test"}}, "Subject: Other\n\nbody", false},
		{"include header ignores body", Options{IncludeHeader: []string{"needle"}}, "Subject: x\n\nneedle", false},
		{"include body match", Options{IncludeBody: []string{"important"}}, "Subject: x\n\nvery important", true},
		{"exclude header match", Options{ExcludeHeader: []string{"spam"}}, "Subject: spam offer\n\nbody", false},
		{"exclude header miss", Options{ExcludeHeader: []string{"spam"}}, "Subject: hello\n\nbody", true},
		{"exclude body crlf", Options{ExcludeBody: []string{"^drop"}}, "Subject: x\r\n\r\ndrop me", false},
		{"bounces only mailer-daemon", Options{BouncesOnly: true}, "From: MAILER-DAEMON@mx.example.com\nSubject: hi\n\nbody", true},
		{"bounces only report", Options{BouncesOnly: true}, "Content-Type: multipart/report; report-type=delivery-status\n\nbody", true},
		{"bounces only regular mail", Options{BouncesOnly: true}, "From: alice@example.com\nSubject: lunch\n\nbody", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Allows(msg(tt.raw)))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{IncludeHeader: []string{"test"}, ExcludeHeader: []string{"spam"}})
	assert.Error(t, err)

	_, err = New(Options{BouncesOnly: true, ExcludeBody: []string{"x"}})
	assert.Error(t, err)

	_, err = New(Options{IncludeBody: []string{"("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include-body")
}

func TestFilter_Hits(t *testing.T) {
	f, err := New(Options{IncludeHeader: []string{"(?i)subject: undelivered", "  ", "(?i)from: postmaster"}})
	require.NoError(t, err)

	f.Allows(msg("Subject: Undelivered Mail\n\n"))
	f.Allows(msg("Subject: undelivered again\n\n"))
	f.Allows(msg("From: postmaster@example.com\n\n"))
	f.Allows(msg("Subject: other\n\n"))

	assert.Equal(t, map[string]int{
		"include-header (?i)subject: undelivered": 2,
		"include-header (?i)from: postmaster":     1,
	}, f.Hits())
}

func TestOptions_Active(t *testing.T) {
	assert.False(t, Options{}.Active())
	assert.True(t, Options{BouncesOnly: true}.Active())
	assert.True(t, Options{ExcludeBody: []string{"x"}}.Active())
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		raw    string
		header string
		body   string
	}{
		{"", "", ""},
		{"A: b\r\n\r\nbody", "A: b", "body"},
		{"A: b\n\nbody", "A: b", "body"},
		{"A: b", "A: b", ""},
	}
	for _, tt := range tests {
		h, b := SplitRawMessage([]byte(tt.raw))
		assert.Equal(t, tt.header, string(h))
		assert.Equal(t, tt.body, string(b))
	}
}
