package events

import (
	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger. Per-cell chatter goes to debug,
// retries and coverage gaps to warn, and terminal events carry the summary
// line as the message.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case CellStarted:
		ev = s.logger.Debug()
	case CellCompleted, CellSplit:
		ev = s.logger.Info()
	case RateLimited, NetworkRetry, ApplicationRetry, CoverageIncomplete, CapReached:
		ev = s.logger.Warn()
	case CellFailed, RegionFailed:
		ev = s.logger.Error()
	case RegionFinished:
		ev = s.logger.Info()
		if e.Summary != nil && !e.Summary.CoverageComplete {
			ev = s.logger.Warn()
		}
	default:
		ev = s.logger.Debug()
	}

	ev = ev.Str("event", string(e.Type))
	if e.Region != "" {
		ev = ev.Str("region", e.Region)
	}
	if e.Cell != nil {
		ev = ev.Str("cell", e.Cell.Box.String()).Int("depth", e.Cell.Depth)
	}

	switch e.Type {
	case CellCompleted:
		ev = ev.Int("new_records", e.NewRecords).Int("cumulative_total", e.CumulativeTotal)
	case CellSplit:
		ev = ev.Int("child_count", e.ChildCount)
	case RateLimited, NetworkRetry, ApplicationRetry:
		ev = ev.Int("attempt", e.Attempt).Float64("wait_seconds", e.Wait.Seconds())
	case CapReached:
		ev = ev.Int("cumulative_total", e.CumulativeTotal)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}

	if e.Summary != nil {
		if e.Summary.RunID != "" {
			ev = ev.Str("run_id", e.Summary.RunID)
		}
		ev.Int("total_written", e.Summary.TotalWritten).
			Bool("coverage_complete", e.Summary.CoverageComplete).
			Str("status", string(e.Summary.Status)).
			Msg(e.Summary.Line())
		return
	}
	ev.Msg(message(e.Type))
}

func message(t Type) string {
	switch t {
	case CellStarted:
		return "Cell started"
	case CellCompleted:
		return "Cell completed"
	case CellSplit:
		return "Cell saturated, splitting"
	case CellFailed:
		return "Cell failed, continuing with next cell"
	case RateLimited:
		return "Rate limited, backing off"
	case NetworkRetry:
		return "Network error, retrying"
	case ApplicationRetry:
		return "Provider error, retrying"
	case CapReached:
		return "Region record cap reached"
	case CoverageIncomplete:
		return "Cell saturated but cannot be split, data may be partial"
	default:
		return string(t)
	}
}
