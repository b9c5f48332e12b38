package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/client"
	"github.com/Sternrassler/poi-sweep/pkg/geo"
	"github.com/Sternrassler/poi-sweep/pkg/poi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds paginator configuration
type Config struct {
	// PageSize is the number of results requested per page (provider max 25).
	PageSize int

	// MaxPages is the highest page number requested for one cell.
	MaxPages int

	// MaxRecordsPerCell truncates a cell's results and marks it as limited.
	// Zero disables the check.
	MaxRecordsPerCell int

	// Types optionally restricts results to provider type codes.
	Types string
}

// DefaultConfig returns the provider's paging limits.
func DefaultConfig() Config {
	return Config{
		PageSize: 25,
		MaxPages: 100,
	}
}

// PageFetcher is the interface the provider client implements for
// single-page fetching.
type PageFetcher interface {
	FetchPage(ctx context.Context, q client.Query) (*client.Page, error)
}

// Outcome is what one cell produced.
type Outcome struct {
	Records []poi.Record

	// DeclaredTotal is the provider's count from the first page that had one.
	DeclaredTotal *int

	// LimitHit is set when the cell may hold more results than were
	// returned.
	LimitHit bool

	// Pages is the number of pages requested, including the one that ended
	// the loop.
	Pages int

	// Err is set when a page failed for a reason other than the provider's
	// ceiling.
	Err error
}

// Paginator fetches all reachable pages of a cell.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPaginator creates a new paginator
func NewPaginator(fetcher PageFetcher, config Config) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = 25
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if config.MaxRecordsPerCell < 0 {
		config.MaxRecordsPerCell = 0
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// Config returns the effective configuration.
func (p *Paginator) Config() Config {
	return p.config
}

// FetchCell fetches the pages of one cell until a stop condition is met.
func (p *Paginator) FetchCell(ctx context.Context, keyword, city string, cell geo.Cell) Outcome {
	start := time.Now()
	var out Outcome

	for page := 1; ; page++ {
		q := client.Query{
			Keyword:  keyword,
			City:     city,
			Types:    p.config.Types,
			Box:      cell.Box,
			Page:     page,
			PageSize: p.config.PageSize,
		}

		res, err := p.fetcher.FetchPage(ctx, q)
		out.Pages = page

		if err != nil {
			if errors.Is(err, client.ErrRateLimitExhausted) {
				// persistent over-quota: treat the cell as saturated so it
				// is split or reported rather than silently dropped
				p.logger.Warn().
					Err(err).
					Int("page", page).
					Int("depth", cell.Depth).
					Int("collected", len(out.Records)).
					Msg("Rate limit persisted - treating cell as saturated")
				out.LimitHit = true
				return out
			}

			p.logger.Warn().
				Err(err).
				Int("page", page).
				Int("depth", cell.Depth).
				Int("collected", len(out.Records)).
				Msg("Page fetch failed - returning partial cell")
			out.Err = err
			return out
		}

		if out.DeclaredTotal == nil && res.DeclaredTotal != nil {
			total := *res.DeclaredTotal
			out.DeclaredTotal = &total
		}

		if res.EndOfResults || len(res.Records) == 0 {
			out.LimitHit = out.declaredExceedsCollected()
			p.finish(cell, out, start, "end")
			return out
		}

		out.Records = append(out.Records, res.Records...)

		if limit := p.config.MaxRecordsPerCell; limit > 0 && len(out.Records) >= limit {
			out.Records = out.Records[:limit]
			out.LimitHit = true
			p.finish(cell, out, start, "record_ceiling")
			return out
		}

		if len(res.Records) < p.config.PageSize {
			out.LimitHit = out.declaredExceedsCollected()
			p.finish(cell, out, start, "short_page")
			return out
		}

		if page >= p.config.MaxPages {
			out.LimitHit = true
			p.finish(cell, out, start, "page_ceiling")
			return out
		}

		// Progress logging every 20 pages
		if page%20 == 0 {
			p.logger.Debug().
				Int("page", page).
				Int("collected", len(out.Records)).
				Str("box", cell.Box.String()).
				Msg("Cell progress")
		}
	}
}

func (p *Paginator) finish(cell geo.Cell, out Outcome, start time.Time, reason string) {
	ev := p.logger.Debug().
		Str("box", cell.Box.String()).
		Int("depth", cell.Depth).
		Int("pages", out.Pages).
		Int("records", len(out.Records)).
		Bool("limit_hit", out.LimitHit).
		Str("stop", reason).
		Dur("duration", time.Since(start))
	if out.DeclaredTotal != nil {
		ev = ev.Int("declared", *out.DeclaredTotal)
	}
	ev.Msg("Cell fetch complete")
}

func (o *Outcome) declaredExceedsCollected() bool {
	return o.DeclaredTotal != nil && *o.DeclaredTotal > len(o.Records)
}
