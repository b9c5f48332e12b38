package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/client"
	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/export"
	"github.com/Sternrassler/poi-sweep/pkg/harvest"
	"github.com/Sternrassler/poi-sweep/pkg/logging"
	"github.com/Sternrassler/poi-sweep/pkg/metrics"
	"github.com/Sternrassler/poi-sweep/pkg/pagination"
	"github.com/Sternrassler/poi-sweep/pkg/sweep"
	"github.com/spf13/cobra"
)

var errAllRegionsFailed = errors.New("every region failed")

// sweepOptions are the command-line flags.
type sweepOptions struct {
	keyword string
	types   string
	regions []string
	outDir  string

	maxDepth    int
	minEdge     float64
	recordCap   int
	workers     int
	pageSize    int
	maxPages    int
	cellRecords int

	requestsPerSecond float64
	requestInterval   time.Duration
	cacheTTL          time.Duration
	baseURL           string
	endCode           string
}

var opts sweepOptions

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.keyword, "keyword", "k", "", "search keyword (required)")
	f.StringVar(&opts.types, "types", "", "provider POI type codes, |-separated")
	f.StringArrayVarP(&opts.regions, "region", "r", nil, "region as name[:code[:minLng,minLat,maxLng,maxLat]] (repeatable)")
	f.StringVarP(&opts.outDir, "out", "o", ".", "output directory for xlsx files")

	def := sweep.DefaultConfig()
	f.IntVar(&opts.maxDepth, "depth", def.MaxSplitDepth, "maximum split depth")
	f.Float64Var(&opts.minEdge, "min-edge", def.MinCellEdge, "smallest cell edge in degrees that may still be split")
	f.IntVar(&opts.recordCap, "cap", 0, "stop a region after this many unique records (0 = unbounded)")
	f.IntVar(&opts.workers, "workers", def.Workers, "cells fetched concurrently")

	pdef := pagination.DefaultConfig()
	f.IntVar(&opts.pageSize, "page-size", pdef.PageSize, "results per page")
	f.IntVar(&opts.maxPages, "max-pages", pdef.MaxPages, "highest page requested per cell")
	f.IntVar(&opts.cellRecords, "max-cell-records", 0, "treat a cell as saturated after this many records (0 = off)")

	cdef := client.DefaultConfig("")
	f.Float64Var(&opts.requestsPerSecond, "rps", cdef.Budget.RequestsPerSecond, "request budget per second (0 = unlimited)")
	f.DurationVar(&opts.requestInterval, "request-interval", cdef.RequestInterval, "pause after every successful request")
	f.DurationVar(&opts.cacheTTL, "cache-ttl", 24*time.Hour, "page cache TTL when REDIS_URL is set (0 = off)")
	f.StringVar(&opts.baseURL, "base-url", cdef.BaseURL, "provider base URL")
	f.StringVar(&opts.endCode, "end-code", "", "provider info code meaning past the last page")
	_ = f.MarkHidden("base-url")

	_ = rootCmd.MarkFlagRequired("keyword")

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runSweep(ctx, env, opts, cmd.OutOrStdout())
	}
}

// runSweep wires the stack, runs every region and prints one summary line
// per region. It fails only when every region failed.
func runSweep(ctx context.Context, env envConfig, o sweepOptions, stdout io.Writer) error {
	logger := logging.NewLogger("cli")

	if env.APIKey == "" {
		return fmt.Errorf("%s is required", envAPIKey)
	}
	if len(o.regions) == 0 {
		return errors.New("at least one --region is required")
	}

	if env.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(mctx, env.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	ccfg := client.DefaultConfig(env.APIKey)
	ccfg.BaseURL = o.baseURL
	ccfg.RequestInterval = o.requestInterval
	ccfg.Budget.RequestsPerSecond = o.requestsPerSecond
	if o.endCode != "" {
		ccfg.Codes = ccfg.Codes.With(o.endCode, client.ErrorClassNoMorePages)
	}

	rdb, err := connectRedis(ctx, env.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable - running without shared cool-down and page cache")
	}
	if rdb != nil {
		defer rdb.Close()
		ccfg.Redis = rdb
		ccfg.CacheTTL = o.cacheTTL
	}

	amap, err := client.New(ccfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer amap.Close()

	paginator := pagination.NewPaginator(amap, pagination.Config{
		PageSize:          o.pageSize,
		MaxPages:          o.maxPages,
		MaxRecordsPerCell: o.cellRecords,
		Types:             o.types,
	})

	engine, err := sweep.NewEngine(paginator, nil, sweep.Config{
		Keyword:       o.keyword,
		MaxSplitDepth: o.maxDepth,
		MinCellEdge:   o.minEdge,
		RecordCap:     o.recordCap,
		Workers:       o.workers,
	})
	if err != nil {
		return fmt.Errorf("invalid sweep settings: %w", err)
	}

	regions, err := harvest.ResolveAll(ctx, harvest.NewStaticResolver(harvest.Municipalities()...), o.regions)
	if err != nil {
		return err
	}

	writer := export.NewXLSXWriter(o.outDir, o.keyword)
	h, err := harvest.New(engine, writer, events.NewLogSink(logging.NewLogger("events")))
	if err != nil {
		return err
	}

	batch := h.RunBatch(ctx, regions)
	for _, r := range batch.Regions {
		fmt.Fprintln(stdout, r.Summary.Line())
	}

	if batch.AllFailed() {
		return errAllRegionsFailed
	}
	return nil
}
