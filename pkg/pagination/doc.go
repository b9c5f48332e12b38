// Package pagination walks the result pages of one cell query.
//
// The provider only ever returns a limited number of results for a single
// query, however many pages are requested. The paginator collects what one
// cell can give and reports whether the provider's ceiling was reached, which
// is the signal the sweep engine uses to split the cell.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	p := pagination.NewPaginator(amapClient, cfg)
//	out := p.FetchCell(ctx, "物业公司", "310000", geo.SeedCell(box))
//	if out.LimitHit {
//		// split the cell
//	}
//
// Pages are fetched sequentially: whether page n+1 is requested depends on
// page n. The loop stops on
//   - an empty page, an end-of-results reply or a short page
//   - the page ceiling (MaxPages) with a full last page
//   - the per-cell record ceiling (MaxRecordsPerCell)
//   - a persistent rate limit, which counts as a ceiling hit
//   - any other error, which is reported in Outcome.Err
//
// Records collected before a stop are always returned.
package pagination
