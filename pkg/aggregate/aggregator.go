// Package aggregate holds the per-region set of unique POI records.
//
// The Aggregator is the single source of truth for what a region run has
// seen. Records enter only through Absorb, which is safe for concurrent use;
// everything else returns copies.
package aggregate

import (
	"sync"

	"github.com/Sternrassler/poi-sweep/pkg/poi"
)

// Aggregator deduplicates records across all cells of one region.
type Aggregator struct {
	mu             sync.Mutex
	region         string
	limit          int
	index          map[string]struct{}
	records        []poi.Record
	cellsProcessed int
}

// New creates an Aggregator for a region. limit caps the number of unique
// records kept; zero or negative means unbounded.
func New(region string, limit int) *Aggregator {
	if limit < 0 {
		limit = 0
	}
	return &Aggregator{
		region: region,
		limit:  limit,
		index:  make(map[string]struct{}),
	}
}

// Absorb inserts every record whose key has not been seen, in order, and
// returns how many were inserted. Once the limit is reached the remaining
// records of the batch are dropped and capReached is true.
func (a *Aggregator) Absorb(records []poi.Record) (added int, capReached bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range records {
		if a.full() {
			break
		}
		key := r.Key()
		if _, dup := a.index[key]; dup {
			continue
		}
		a.index[key] = struct{}{}
		a.records = append(a.records, r)
		added++
	}

	return added, a.full()
}

func (a *Aggregator) full() bool {
	return a.limit > 0 && len(a.records) >= a.limit
}

// MarkCellProcessed counts one finished cell.
func (a *Aggregator) MarkCellProcessed() {
	a.mu.Lock()
	a.cellsProcessed++
	a.mu.Unlock()
}

// Region returns the region name this aggregate belongs to.
func (a *Aggregator) Region() string { return a.region }

// Limit returns the configured record cap (0 = unbounded).
func (a *Aggregator) Limit() int { return a.limit }

// Len returns the number of unique records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// TotalWritten is the number of unique records that will be handed to the
// persistence collaborator.
func (a *Aggregator) TotalWritten() int { return a.Len() }

// CellsProcessed returns the number of cells marked as processed.
func (a *Aggregator) CellsProcessed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cellsProcessed
}

// CapReached reports whether the record cap has been hit.
func (a *Aggregator) CapReached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.full()
}

// Seen reports whether a record with the given identity key was absorbed.
func (a *Aggregator) Seen(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.index[key]
	return ok
}

// Records returns a copy of the unique records in insertion order.
func (a *Aggregator) Records() []poi.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]poi.Record, len(a.records))
	copy(out, a.records)
	return out
}
