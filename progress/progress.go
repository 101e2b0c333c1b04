package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mail-campaign/stats"
)

// Bar renders scan or campaign progress. A disabled Bar ignores every call.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New starts a progress bar when enabled is true. total may be zero when the
// size of the source is unknown; the bar then only shows running counts.
func New(title string, total int, enabled bool) *Bar {
	bar := &Bar{total: total, enabled: enabled}
	if !enabled {
		return bar
	}

	if total <= 0 {
		total = 1
	}
	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		bar.enabled = false
		return bar
	}
	bar.pb = pb
	return bar
}

// Observe is a stats.Observer advancing the bar.
func (b *Bar) Observe(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		if b.total > 0 && b.pb.Current < b.total {
			b.pb.Increment()
		}
	case stats.EventTypeParsed, stats.EventTypeCached:
		b.pb.UpdateTitle(fmt.Sprintf("Scanning (%d rejected)", evt.Total))
	case stats.EventTypeSent, stats.EventTypeSuppressed:
		b.pb.Increment()
		if evt.Recipient != "" {
			b.pb.UpdateTitle("Sent: " + truncate(evt.Recipient, 40))
		}
	case stats.EventTypeError:
		if evt.Err == nil {
			return
		}
		if evt.Stage == stats.StageCampaign {
			b.pb.Increment()
			pterm.Error.Printf("%s: %v\n", evt.Recipient, evt.Err)
			return
		}
		pterm.Warning.Printf("message %d: %v\n", evt.Index, evt.Err)
	}
}

// Stop finalizes the bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.pb.Total {
		b.pb.Current = b.pb.Total
	}
	_, _ = b.pb.Stop()
}

// PrintSummary writes the run statistics of stage below the bar.
func PrintSummary(stage stats.Stage, summary stats.Summary, duration time.Duration) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))

	switch stage {
	case stats.StageScan:
		pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
		pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
		pterm.Info.Printf("Parsed: %d\n", summary.Parsed)
		pterm.Info.Printf("From cache: %d\n", summary.Cached)
		pterm.Info.Printf("Addresses found: %d\n", summary.Found)
	case stats.StageCampaign:
		pterm.Info.Printf("Sent: %d\n", summary.Sent)
		pterm.Info.Printf("Suppressed: %d\n", summary.Suppressed)
	}
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
