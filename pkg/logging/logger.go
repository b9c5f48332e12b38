// Package logging configures zerolog for poi-sweep.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-page and per-cell flow.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs region and batch lifecycle.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries and coverage gaps.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed cells and regions only.
	LevelError LogLevel = "error"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// FromEnv builds a config from LOG_LEVEL and LOG_FORMAT ("json", the
// default, or "pretty"). getenv is usually os.Getenv.
func FromEnv(getenv func(string) string) Config {
	cfg := DefaultConfig()
	if lvl := strings.TrimSpace(getenv(EnvLevel)); lvl != "" {
		cfg.Level = LogLevel(strings.ToLower(lvl))
	}
	switch strings.ToLower(strings.TrimSpace(getenv(EnvFormat))) {
	case "pretty", "console", "text":
		cfg.Pretty = true
	}
	return cfg
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: page and cell flow
//   - Search requests (page, polygon)
//   - Cache hits, misses and stores
//   - Cell completion with fetched/new counts
//   - Cool-down waits
//
// Info: region lifecycle
//   - Region start and finish with the summary line
//   - Cell completion and splits (via events.LogSink)
//   - Batch start and completion
//   - Files written
//
// Warn: conditions that reduce coverage or speed
//   - Retries (network, rate limit, provider)
//   - Cells saturated at the depth or edge limit
//   - Cancelled batches
//   - Shared state unavailable (falling back to local)
//
// Error: failures scoped to a cell or region
//   - Cells that failed after retries
//   - Regions without a boundary or where every cell failed
//   - Write failures
//
// Context Fields:
//   - component: poi-client, paginator, sweep, harvest, ratelimit, cache, export
//   - run_id: batch identifier
//   - region: region name
//   - box / cell: cell bounding box, depth: split depth
//   - page: page number
//   - error_class: network, rate_limit, application, client
//   - new_records, cumulative_total: aggregate progress
