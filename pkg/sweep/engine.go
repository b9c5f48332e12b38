// Package sweep implements the adaptive decomposition of a region into
// cells small enough for the provider's per-query result ceiling.
//
// The engine keeps a breadth-first worklist of cells seeded with the region's
// bounding box. Every cell is paginated; a saturated cell that can still be
// split is replaced by its four quadrants on the next level. Records from all
// cells go through one Aggregator, so overlap between a parent and its
// children never produces duplicates.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/aggregate"
	"github.com/Sternrassler/poi-sweep/pkg/client"
	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/geo"
	"github.com/Sternrassler/poi-sweep/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds engine configuration.
type Config struct {
	// Keyword is the search term sent with every query.
	Keyword string

	// MaxSplitDepth bounds how often a cell may be split. Total cells per
	// region never exceed geo.MaxCells(MaxSplitDepth).
	MaxSplitDepth int

	// MinCellEdge is the smallest edge, in degrees, a cell may be split
	// below. Both edges must exceed it for a split.
	MinCellEdge float64

	// RecordCap stops the region once that many unique records are held.
	// Zero means unbounded.
	RecordCap int

	// Workers is the number of cells of one level fetched concurrently.
	Workers int
}

// DefaultConfig returns settings suited to a city-sized region.
func DefaultConfig() Config {
	return Config{
		MaxSplitDepth: 6,
		MinCellEdge:   0.005,
		Workers:       1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSplitDepth < 0 {
		return fmt.Errorf("max split depth must be >= 0 (got %d)", c.MaxSplitDepth)
	}
	if c.MinCellEdge < 0 {
		return fmt.Errorf("min cell edge must be >= 0 (got %v)", c.MinCellEdge)
	}
	if c.RecordCap < 0 {
		return fmt.Errorf("record cap must be >= 0 (got %d)", c.RecordCap)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	return nil
}

// CellFetcher paginates one cell. *pagination.Paginator implements it.
type CellFetcher interface {
	FetchCell(ctx context.Context, keyword, city string, cell geo.Cell) pagination.Outcome
}

// Region identifies the area being swept. Code is sent as the provider's
// city filter when set.
type Region struct {
	Name string
	Code string
}

// Result is the outcome of one region run. Aggregate always holds what was
// collected, including on cancellation.
type Result struct {
	Aggregate *aggregate.Aggregator
	Summary   events.Summary

	CellsEnqueued int
	CellsFailed   int
	CoverageGaps  int

	// MaxDepth is the deepest level that was processed.
	MaxDepth int
}

// Engine runs the decomposition for one region at a time. It is safe to
// call Run concurrently for different regions.
type Engine struct {
	cells  CellFetcher
	sink   events.Sink
	config Config
	logger zerolog.Logger
}

// NewEngine creates an engine. sink may be nil; a sink carried by the Run
// context takes precedence.
func NewEngine(cells CellFetcher, sink events.Sink, config Config) (*Engine, error) {
	if cells == nil {
		return nil, errors.New("cell fetcher is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.Discard
	}

	return &Engine{
		cells:  cells,
		sink:   sink,
		config: config,
		logger: log.With().Str("component", "sweep").Logger(),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// cellReport is what one cell contributes to the next level.
type cellReport struct {
	failed   bool
	gap      bool
	children []geo.Cell
	err      error
}

// run is the state of one region run.
type run struct {
	engine *Engine
	region Region
	sink   events.Sink
	agg    *aggregate.Aggregator
	logger zerolog.Logger

	capOnce sync.Once
}

// Run sweeps seed for region. It returns an error only when the seed is
// unusable; every other failure is reported in the Result's summary and the
// RegionFinished event, which is emitted exactly once.
func (e *Engine) Run(ctx context.Context, region Region, seed geo.BoundingBox) (*Result, error) {
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("seed for region %s: %w", region.Name, err)
	}

	start := time.Now()
	r := &run{
		engine: e,
		region: region,
		sink:   events.WithRegion(region.Name, events.FromContext(ctx, e.sink)),
		agg:    aggregate.New(region.Name, e.config.RecordCap),
		logger: e.logger.With().Str("region", region.Name).Logger(),
	}
	res := &Result{Aggregate: r.agg}

	r.logger.Info().
		Str("keyword", e.config.Keyword).
		Str("seed", seed.String()).
		Int("max_depth", e.config.MaxSplitDepth).
		Int("record_cap", e.config.RecordCap).
		Int("workers", e.config.Workers).
		Msg("Starting region sweep")

	var firstErr error
	level := []geo.Cell{geo.SeedCell(seed)}
	res.CellsEnqueued = 1

	for len(level) > 0 {
		if ctx.Err() != nil || r.agg.CapReached() {
			break
		}
		res.MaxDepth = level[0].Depth

		reports := r.processLevel(ctx, level)

		var next []geo.Cell
		for _, rep := range reports {
			if rep.failed {
				res.CellsFailed++
				if firstErr == nil {
					firstErr = rep.err
				}
			}
			if rep.gap {
				res.CoverageGaps++
			}
			next = append(next, rep.children...)
		}
		res.CellsEnqueued += len(next)

		r.logger.Debug().
			Int("depth", res.MaxDepth).
			Int("cells", len(level)).
			Int("next_level", len(next)).
			Int("total", r.agg.Len()).
			Msg("Level complete")

		level = next
	}

	res.Summary = r.summarize(ctx, res, firstErr)

	r.logger.Info().
		Str("status", string(res.Summary.Status)).
		Int("records", res.Summary.TotalWritten).
		Int("cells", res.Summary.CellsProcessed).
		Int("cells_enqueued", res.CellsEnqueued).
		Int("cells_failed", res.CellsFailed).
		Int("coverage_gaps", res.CoverageGaps).
		Dur("duration", time.Since(start)).
		Msg("Region sweep finished")

	summary := res.Summary
	r.sink.Emit(events.Event{
		Type:            events.RegionFinished,
		Time:            time.Now(),
		CumulativeTotal: summary.TotalWritten,
		Summary:         &summary,
		Err:             firstErr,
	})

	return res, nil
}

// processLevel runs every cell of one depth, up to Workers at a time, and
// returns the reports in cell order so the next level is deterministic.
func (r *run) processLevel(ctx context.Context, level []geo.Cell) []cellReport {
	reports := make([]cellReport, len(level))

	var g errgroup.Group
	g.SetLimit(r.engine.config.Workers)

	for i, cell := range level {
		g.Go(func() error {
			reports[i] = r.processCell(ctx, cell)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// processCell fetches one cell and decides what happens to it.
func (r *run) processCell(ctx context.Context, cell geo.Cell) cellReport {
	if ctx.Err() != nil {
		cellsTotal.WithLabelValues(outcomeCancelled).Inc()
		return cellReport{}
	}
	if r.agg.CapReached() {
		cellsTotal.WithLabelValues(outcomeSkipped).Inc()
		return cellReport{}
	}

	cfg := r.engine.config
	c := cell
	r.sink.Emit(events.Event{Type: events.CellStarted, Time: time.Now(), Cell: &c})

	out := r.engine.cells.FetchCell(ctx, cfg.Keyword, r.region.Code, cell)

	added, capHit := r.agg.Absorb(out.Records)
	r.agg.MarkCellProcessed()
	total := r.agg.Len()
	recordsNewTotal.Add(float64(added))
	cellDepth.Observe(float64(cell.Depth))

	r.sink.Emit(events.Event{
		Type:            events.CellCompleted,
		Time:            time.Now(),
		Cell:            &c,
		NewRecords:      added,
		CumulativeTotal: total,
	})

	r.logger.Debug().
		Str("box", cell.Box.String()).
		Int("depth", cell.Depth).
		Int("fetched", len(out.Records)).
		Int("new", added).
		Int("total", total).
		Bool("limit_hit", out.LimitHit).
		Int("pages", out.Pages).
		Msg("Cell completed")

	var rep cellReport

	switch {
	case capHit:
		r.capOnce.Do(func() {
			r.logger.Info().Int("cap", cfg.RecordCap).Msg("Region record cap reached")
			r.sink.Emit(events.Event{Type: events.CapReached, Time: time.Now(), Cell: &c, CumulativeTotal: total})
		})
		cellsTotal.WithLabelValues(outcomeCapReached).Inc()

	case out.Err != nil && (errors.Is(out.Err, client.ErrContextCancelled) || ctx.Err() != nil):
		cellsTotal.WithLabelValues(outcomeCancelled).Inc()

	case out.Err != nil:
		rep.failed = true
		rep.err = out.Err
		r.logger.Error().
			Err(out.Err).
			Str("box", cell.Box.String()).
			Int("depth", cell.Depth).
			Int("kept", len(out.Records)).
			Msg("Cell failed")
		r.sink.Emit(events.Event{Type: events.CellFailed, Time: time.Now(), Cell: &c, NewRecords: added, Err: out.Err})
		cellsTotal.WithLabelValues(outcomeFailed).Inc()

	case out.LimitHit && cell.Depth < cfg.MaxSplitDepth && cell.Box.CanSplit(cfg.MinCellEdge):
		children := cell.Children()
		rep.children = children[:]
		cellSplitsTotal.Inc()
		r.sink.Emit(events.Event{Type: events.CellSplit, Time: time.Now(), Cell: &c, ChildCount: len(children)})
		cellsTotal.WithLabelValues(outcomeSplit).Inc()

	case out.LimitHit:
		rep.gap = true
		r.logger.Warn().
			Str("box", cell.Box.String()).
			Int("depth", cell.Depth).
			Int("fetched", len(out.Records)).
			Msg("Cell saturated but cannot be split - results may be partial")
		r.sink.Emit(events.Event{Type: events.CoverageIncomplete, Time: time.Now(), Cell: &c})
		cellsTotal.WithLabelValues(outcomeIncomplete).Inc()

	default:
		cellsTotal.WithLabelValues(outcomeComplete).Inc()
	}

	return rep
}

// summarize derives the terminal status. Precedence: cancelled, cap
// reached, failed (no cell succeeded), coverage incomplete, complete.
func (r *run) summarize(ctx context.Context, res *Result, firstErr error) events.Summary {
	s := events.Summary{
		RegionName:     r.region.Name,
		RegionCode:     r.region.Code,
		TotalWritten:   r.agg.TotalWritten(),
		CellsProcessed: r.agg.CellsProcessed(),
		CellsFailed:    res.CellsFailed,
		CoverageGaps:   res.CoverageGaps,
	}

	switch {
	case ctx.Err() != nil:
		s.Status = events.StatusCancelled
		s.Reason = ctx.Err().Error()
	case r.agg.CapReached():
		s.Status = events.StatusCapReached
		s.Reason = fmt.Sprintf("record cap %d reached", r.agg.Limit())
	case res.CellsFailed > 0 && res.CellsFailed == s.CellsProcessed:
		s.Status = events.StatusFailed
		if firstErr != nil {
			s.Reason = firstErr.Error()
		}
	case res.CellsFailed > 0 || res.CoverageGaps > 0:
		s.Status = events.StatusCoverageIncomplete
	default:
		s.Status = events.StatusComplete
	}

	s.CoverageComplete = s.Status == events.StatusComplete
	return s
}
