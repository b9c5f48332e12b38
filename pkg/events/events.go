// Package events defines the progress events emitted while sweeping a
// region and the sinks that consume them.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/geo"
)

// Type identifies an event.
type Type string

const (
	// CellStarted is emitted before a cell is paginated.
	CellStarted Type = "cell_started"
	// CellCompleted carries the new-record count and running total of a cell.
	CellCompleted Type = "cell_completed"
	// CellSplit is emitted when a saturated cell is replaced by its children.
	CellSplit Type = "cell_split"
	// CellFailed reports a cell that ended with a fatal fetch error.
	CellFailed Type = "cell_failed"
	// RateLimited reports a rate-limit retry and its wait.
	RateLimited Type = "rate_limited"
	// NetworkRetry reports a transport retry and its wait.
	NetworkRetry Type = "network_retry"
	// ApplicationRetry reports a retry after an unexpected provider status.
	ApplicationRetry Type = "application_retry"
	// CapReached is emitted once when the region record cap is hit.
	CapReached Type = "cap_reached"
	// CoverageIncomplete flags a saturated cell that can no longer be split.
	CoverageIncomplete Type = "coverage_incomplete"
	// RegionFinished carries the summary of a region run.
	RegionFinished Type = "region_finished"
	// RegionFailed reports a region that could not run or write.
	RegionFailed Type = "region_failed"
)

// Status is the terminal state of a region run.
type Status string

const (
	// StatusComplete means every cell fit under the provider ceiling.
	StatusComplete Status = "complete"
	// StatusCapReached means the region record cap stopped the run.
	StatusCapReached Status = "cap_reached"
	// StatusCoverageIncomplete means some unsplittable cells may be partial.
	StatusCoverageIncomplete Status = "coverage_incomplete"
	// StatusCancelled means the run was stopped from outside.
	StatusCancelled Status = "cancelled"
	// StatusFailed means the region could not run or every cell failed.
	StatusFailed Status = "failed"
)

// Summary describes the outcome of one region run.
type Summary struct {
	RegionName       string `json:"region_name"`
	RegionCode       string `json:"region_code"`
	TotalWritten     int    `json:"total_written"`
	CellsProcessed   int    `json:"cells_processed"`
	CellsFailed      int    `json:"cells_failed"`
	CoverageGaps     int    `json:"coverage_gaps"`
	CoverageComplete bool   `json:"coverage_complete"`
	Status           Status `json:"status"`
	Reason           string `json:"reason,omitempty"`
	RunID            string `json:"run_id,omitempty"`
}

// Line renders the summary as the single human-readable line printed for
// every terminal condition.
func (s Summary) Line() string {
	line := fmt.Sprintf("%s (%s): %s, %d records, %d cells",
		s.RegionName, s.RegionCode, s.Status, s.TotalWritten, s.CellsProcessed)
	if s.CellsFailed > 0 {
		line += fmt.Sprintf(", %d failed cells", s.CellsFailed)
	}
	if s.CoverageGaps > 0 {
		line += fmt.Sprintf(", %d cells may be partial", s.CoverageGaps)
	}
	if s.Reason != "" {
		line += ": " + s.Reason
	}
	return line
}

// Event is one progress notification. Only the fields relevant to Type are set.
type Event struct {
	Type            Type          `json:"type"`
	Time            time.Time     `json:"time"`
	Region          string        `json:"region,omitempty"`
	Cell            *geo.Cell     `json:"cell,omitempty"`
	NewRecords      int           `json:"new_records,omitempty"`
	CumulativeTotal int           `json:"cumulative_total,omitempty"`
	ChildCount      int           `json:"child_count,omitempty"`
	Attempt         int           `json:"attempt,omitempty"`
	Wait            time.Duration `json:"wait,omitempty"`
	Summary         *Summary      `json:"summary,omitempty"`
	Err             error         `json:"-"`
}

// Sink consumes events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// WithRegion stamps the region name on events that lack one.
func WithRegion(region string, sink Sink) Sink {
	return SinkFunc(func(e Event) {
		if e.Region == "" {
			e.Region = region
		}
		sink.Emit(e)
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Last returns the most recent event of type t.
func (r *Recorder) Last(t Type) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}
