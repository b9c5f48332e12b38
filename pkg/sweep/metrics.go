package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the decomposition engine.
var (
	cellsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poi_cells_total",
		Help: "Total cells processed by outcome",
	}, []string{"outcome"})

	cellSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poi_cell_splits_total",
		Help: "Total number of saturated cells split into quadrants",
	})

	recordsNewTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poi_records_new_total",
		Help: "Total unique records added to region aggregates",
	})

	cellDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poi_cell_depth",
		Help:    "Split depth of processed cells",
		Buckets: prometheus.LinearBuckets(0, 1, 10),
	})
)

// Cell outcome labels.
const (
	outcomeComplete   = "complete"
	outcomeSplit      = "split"
	outcomeIncomplete = "coverage_incomplete"
	outcomeFailed     = "failed"
	outcomeCancelled  = "cancelled"
	outcomeCapReached = "cap_reached"
	outcomeSkipped    = "skipped"
)
