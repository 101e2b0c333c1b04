package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

type Stage string

const (
	StageScan     Stage = "scan"
	StageCampaign Stage = "campaign"
)

type EventType string

const (
	EventTypeScanned    EventType = "scanned"
	EventTypeFiltered   EventType = "filtered"
	EventTypeCached     EventType = "cached"
	EventTypeParsed     EventType = "parsed"
	EventTypeSent       EventType = "sent"
	EventTypeSuppressed EventType = "suppressed"
	EventTypeError      EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	Index     int
	MessageID string
	Recipient string
	Found     int
	// Total is the running count of unique addresses.
	Total     int
	Err       error
	Detail    string
}

// Observer receives events synchronously from the stage producing them.
type Observer func(Event)

// Multi fans an event out to every non-nil observer.
func Multi(observers ...Observer) Observer {
	return func(evt Event) {
		for _, o := range observers {
			if o != nil {
				o(evt)
			}
		}
	}
}

type Summary struct {
	Scanned    int
	Filtered   int
	Cached     int
	Parsed     int
	Found      int
	Sent       int
	Suppressed int
	Errors     int
	LastError  error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"filtered", s.Filtered,
		"cached", s.Cached,
		"parsed", s.Parsed,
		"found", s.Found,
		"sent", s.Sent,
		"suppressed", s.Suppressed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

// Observe is an Observer recording evt into the summary.
func (c *Collector) Observe(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeCached:
		c.summary.Cached++
		c.summary.Found += evt.Found
	case EventTypeParsed:
		c.summary.Parsed++
		c.summary.Found += evt.Found
	case EventTypeSent:
		c.summary.Sent++
	case EventTypeSuppressed:
		c.summary.Suppressed++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// PrettyPrintTop writes the top N most frequent items in a map, ties broken by key.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
