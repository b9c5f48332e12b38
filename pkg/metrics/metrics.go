// Package metrics exposes the Prometheus registry used by poi-sweep.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, sweep) to maintain modularity and avoid circular dependencies.
//
// This package serves them over HTTP and documents what is available.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by poi-sweep.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve runs the metrics endpoint on addr until ctx is done, then shuts it
// down.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - poi_requests_total{status} (Counter): Provider requests by outcome (ok, end, info_<code>, http status)
//   - poi_request_duration_seconds (Histogram): Provider request duration
//   - poi_errors_total{class} (Counter): Errors by class (network, rate_limit, application, client)
//
// Retry Metrics (pkg/client):
//   - poi_retries_total{error_class} (Counter): Retry attempts by error class
//   - poi_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - poi_retry_exhausted_total{error_class} (Counter): Requests that exhausted their retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - poi_ratelimit_cooldowns_total (Counter): Cool-downs started or extended
//   - poi_ratelimit_wait_seconds (Histogram): Time spent waiting for the request budget
//   - poi_ratelimit_state_errors_total (Counter): Shared state read/write failures
//
// Cache Metrics (pkg/cache):
//   - poi_cache_hits_total (Counter): Pages served from cache
//   - poi_cache_misses_total (Counter): Pages not in cache
//   - poi_cache_errors_total{operation} (Counter): Cache operation errors
//
// Sweep Metrics (pkg/sweep):
//   - poi_cells_total{outcome} (Counter): Cells by outcome (complete, split, coverage_incomplete, failed, cancelled, cap_reached, skipped)
//   - poi_cell_splits_total (Counter): Saturated cells split into quadrants
//   - poi_records_new_total (Counter): Unique records added to region aggregates
//   - poi_cell_depth (Histogram): Split depth of processed cells
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(poi_cache_hits_total[5m])) /
//   (sum(rate(poi_cache_hits_total[5m])) + sum(rate(poi_cache_misses_total[5m])))
//
//   # Share of cells that hit the provider ceiling
//   rate(poi_cell_splits_total[5m]) / sum(rate(poi_cells_total[5m]))
//
//   # Rate limit pressure
//   rate(poi_retries_total{error_class="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(poi_request_duration_seconds_bucket[5m]))
//
//   # Records per minute
//   rate(poi_records_new_total[1m]) * 60
