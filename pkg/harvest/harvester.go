// Package harvest runs the sweep over a batch of regions and hands each
// region's records to a persistence collaborator.
//
// A failing region never aborts the batch. Whatever a region collected is
// written, including after cancellation or failed cells.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/geo"
	"github.com/Sternrassler/poi-sweep/pkg/poi"
	"github.com/Sternrassler/poi-sweep/pkg/sweep"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sweeper runs the decomposition for one region. *sweep.Engine implements it.
type Sweeper interface {
	Run(ctx context.Context, region sweep.Region, seed geo.BoundingBox) (*sweep.Result, error)
}

// Writer persists the records of one finished region.
type Writer interface {
	Write(ctx context.Context, summary events.Summary, records []poi.Record) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, summary events.Summary, records []poi.Record) error

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, summary events.Summary, records []poi.Record) error {
	return f(ctx, summary, records)
}

// RegionResult is the outcome of one region.
type RegionResult struct {
	Region  Region
	Summary events.Summary
	Records []poi.Record

	// Sweep is nil when no decomposition was attempted.
	Sweep *sweep.Result

	// Err is a *RegionError when the region failed or could not be written.
	Err error
}

// BatchResult is the outcome of a batch.
type BatchResult struct {
	RunID   string
	Regions []*RegionResult
}

// Failed returns how many regions failed.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Regions {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed reports whether the batch produced nothing usable.
func (b *BatchResult) AllFailed() bool {
	return len(b.Regions) > 0 && b.Failed() == len(b.Regions)
}

// Harvester runs regions through a Sweeper.
type Harvester struct {
	sweeper Sweeper
	writer  Writer
	sink    events.Sink
	runID   string
	logger  zerolog.Logger
}

// New creates a harvester. writer and sink may be nil.
func New(sweeper Sweeper, writer Writer, sink events.Sink) (*Harvester, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	if sink == nil {
		sink = events.Discard
	}

	runID := uuid.New().String()
	return &Harvester{
		sweeper: sweeper,
		writer:  writer,
		sink:    sink,
		runID:   runID,
		logger:  log.With().Str("component", "harvest").Str("run_id", runID).Logger(),
	}, nil
}

// RunID identifies this harvester's runs in logs, events and exports.
func (h *Harvester) RunID() string {
	return h.runID
}

// RunBatch runs every region in order. Failed regions are recorded in the
// result and the batch continues; cancellation stops before the next region.
func (h *Harvester) RunBatch(ctx context.Context, regions []Region) *BatchResult {
	start := time.Now()
	batch := &BatchResult{RunID: h.runID}

	h.logger.Info().Int("regions", len(regions)).Msg("Starting batch")

	for i, region := range regions {
		if ctx.Err() != nil {
			h.logger.Warn().
				Int("remaining", len(regions)-i).
				Msg("Batch cancelled - skipping remaining regions")
			break
		}

		res, _ := h.RunRegion(ctx, region)
		batch.Regions = append(batch.Regions, res)
	}

	h.logger.Info().
		Int("regions", len(batch.Regions)).
		Int("failed", batch.Failed()).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return batch
}

// RunRegion sweeps one region and writes its records. The returned result
// is never nil; the error is the result's Err.
func (h *Harvester) RunRegion(ctx context.Context, region Region) (*RegionResult, error) {
	sink := events.WithRegion(region.Name, h.stamp(h.sink))
	ctx = events.NewContext(ctx, sink)
	logger := h.logger.With().Str("region", region.Name).Logger()

	res := &RegionResult{Region: region}

	if region.Seed == nil {
		h.fail(logger, sink, res, ErrNoBoundary)
		return res, res.Err
	}

	sw, err := h.sweeper.Run(ctx, sweep.Region{Name: region.Name, Code: region.Code}, *region.Seed)
	if err != nil {
		h.fail(logger, sink, res, err)
		return res, res.Err
	}

	res.Sweep = sw
	res.Summary = sw.Summary
	res.Summary.RunID = h.runID
	res.Records = sw.Aggregate.Records()

	if res.Summary.Status == events.StatusFailed {
		res.Err = &RegionError{Region: region.Name, Err: fmt.Errorf("%w: %s", ErrAllCellsFailed, res.Summary.Reason)}
	}

	if werr := h.write(ctx, res); werr != nil {
		logger.Error().Err(werr).Int("records", len(res.Records)).Msg("Failed to write region")
		if res.Err == nil {
			res.Err = &RegionError{Region: region.Name, Err: fmt.Errorf("write: %w", werr)}
		}
	}

	return res, res.Err
}

// fail records a region that could not be swept.
func (h *Harvester) fail(logger zerolog.Logger, sink events.Sink, res *RegionResult, err error) {
	res.Err = &RegionError{Region: res.Region.Name, Err: err}
	res.Summary = events.Summary{
		RegionName: res.Region.Name,
		RegionCode: res.Region.Code,
		Status:     events.StatusFailed,
		Reason:     err.Error(),
		RunID:      h.runID,
	}

	logger.Error().Err(err).Msg("Region failed")

	summary := res.Summary
	sink.Emit(events.Event{
		Type:    events.RegionFailed,
		Time:    time.Now(),
		Summary: &summary,
		Err:     res.Err,
	})
}

// write persists records even when ctx was cancelled, so a partial region
// is not lost.
func (h *Harvester) write(ctx context.Context, res *RegionResult) error {
	if h.writer == nil {
		return nil
	}
	return h.writer.Write(context.WithoutCancel(ctx), res.Summary, res.Records)
}

// stamp adds the run ID to summaries passing through sink.
func (h *Harvester) stamp(sink events.Sink) events.Sink {
	return events.SinkFunc(func(e events.Event) {
		if e.Summary != nil && e.Summary.RunID == "" {
			s := *e.Summary
			s.RunID = h.runID
			e.Summary = &s
		}
		sink.Emit(e)
	})
}
