package stats

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	for _, evt := range []Event{
		{Type: EventTypeScanned},
		{Type: EventTypeScanned},
		{Type: EventTypeFiltered},
		{Type: EventTypeParsed, Found: 2},
		{Type: EventTypeCached, Found: 1},
		{Type: EventTypeError, Err: boom},
		{Type: EventTypeSent},
		{Type: EventTypeSuppressed},
	} {
		c.Observe(evt)
	}

	s := c.Snapshot()
	assert.Equal(t, 2, s.Scanned)
	assert.Equal(t, 1, s.Filtered)
	assert.Equal(t, 1, s.Parsed)
	assert.Equal(t, 1, s.Cached)
	assert.Equal(t, 3, s.Found)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, s.Sent)
	assert.Equal(t, 1, s.Suppressed)
	assert.Equal(t, boom, s.LastError)
	assert.Contains(t, s.LogAttrs(), "lastError")
}

func TestMulti(t *testing.T) {
	var got []EventType
	obs := Multi(nil, func(e Event) { got = append(got, e.Type) }, func(e Event) { got = append(got, e.Type) })
	obs(Event{Type: EventTypeSent})
	assert.Equal(t, []EventType{EventTypeSent, EventTypeSent}, got)
}

func TestPrettyPrintTop(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrintTop(&buf, map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, "1. c (5)\n2. a (2)\n3. b (2)\n", buf.String())
}
