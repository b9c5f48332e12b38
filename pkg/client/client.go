// Package client provides the search-provider HTTP client with shared rate
// limiting, page caching and per-class retry with back-off.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/cache"
	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/geo"
	"github.com/Sternrassler/poi-sweep/pkg/poi"
	"github.com/Sternrassler/poi-sweep/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for provider requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poi_requests_total",
		Help: "Total provider requests by outcome",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poi_request_duration_seconds",
		Help:    "Provider request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poi_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poi_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poi_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poi_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

const (
	defaultBaseURL = "https://restapi.amap.com"
	defaultPath    = "/v3/place/polygon"
)

// Query is one page of one cell. City restricts results to an
// administrative region (name or adcode); Types optionally filters by
// provider POI type codes.
type Query struct {
	Keyword  string
	City     string
	Types    string
	Box      geo.BoundingBox
	Page     int
	PageSize int
}

// Validate rejects queries that can never succeed.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Keyword) == "" && strings.TrimSpace(q.Types) == "" {
		return fmt.Errorf("%w: keyword or types is required", ErrInvalidQuery)
	}
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1 (got %d)", ErrInvalidQuery, q.Page)
	}
	if q.PageSize < 1 {
		return fmt.Errorf("%w: page size must be >= 1 (got %d)", ErrInvalidQuery, q.PageSize)
	}
	if err := q.Box.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

func (q Query) cacheKey() cache.PageKey {
	return cache.PageKey{
		Keyword:  q.Keyword + "/" + q.Types,
		City:     q.City,
		Polygon:  q.Box.PolygonParam(),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
}

// Page is one page of results.
type Page struct {
	Records []poi.Record

	// DeclaredTotal is the provider's own count for the query, nil if absent.
	DeclaredTotal *int

	// EndOfResults is set when the provider said the page is past the end.
	EndOfResults bool

	// Cached is set when the page came from the page cache.
	Cached bool
}

// Client is the search-provider client.
type Client struct {
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Config holds the client configuration.
type Config struct {
	// APIKey is the provider web-service key (REQUIRED).
	APIKey string

	// BaseURL and Path locate the polygon search endpoint.
	BaseURL string
	Path    string

	// UserAgent header.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// RequestInterval is the politeness delay after every successful request.
	RequestInterval time.Duration

	// Retry schedules per error class.
	Network     RetryPolicy
	RateLimit   RetryPolicy
	Application RetryPolicy

	// Codes classifies provider info codes.
	Codes CodeTable

	// Redis enables the shared cool-down and, with CacheTTL > 0, the page
	// cache. Optional.
	Redis    *redis.Client
	CacheTTL time.Duration

	// Budget is the shared request budget.
	Budget ratelimit.Config

	// Events receives retry events when the request context carries no sink.
	Events events.Sink
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         defaultBaseURL,
		Path:            defaultPath,
		UserAgent:       "poi-sweep/0.1.0",
		Timeout:         15 * time.Second,
		RequestInterval: 200 * time.Millisecond,
		Network:         DefaultNetworkPolicy(),
		RateLimit:       DefaultRateLimitPolicy(),
		Application:     DefaultApplicationPolicy(),
		Codes:           DefaultCodeTable(),
		Budget:          ratelimit.DefaultConfig(),
	}
}

// New creates a new provider client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if _, err := url.Parse(cfg.BaseURL + cfg.Path); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestInterval < 0 {
		return nil, fmt.Errorf("request interval must be >= 0 (got %v)", cfg.RequestInterval)
	}
	for name, p := range map[string]RetryPolicy{
		"network":     cfg.Network,
		"rate limit":  cfg.RateLimit,
		"application": cfg.Application,
	} {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s retry policy: %w", name, err)
		}
	}
	if cfg.Codes == nil {
		cfg.Codes = DefaultCodeTable()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}

	logger := log.With().Str("component", "poi-client").Logger()

	var pageCache *cache.Manager
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		pageCache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tracker: ratelimit.NewTracker(cfg.Redis, cfg.Budget, log.With().Str("component", "ratelimit").Logger()),
		cache:   pageCache,
		config:  cfg,
		logger:  logger,
		sleep:   sleepContext,
		rand:    defaultRand,
	}, nil
}

// FetchPage fetches one page, retrying transient failures. It returns
//   - the page on success (EndOfResults set for a past-the-end page),
//   - an error wrapping ErrRateLimitExhausted when over-quota persisted,
//   - an error wrapping ErrRetryExhausted or a *ProviderError otherwise,
//   - an error wrapping ErrContextCancelled when ctx ended.
func (c *Client) FetchPage(ctx context.Context, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if page, ok := c.cachedPage(ctx, q); ok {
		return page, nil
	}

	sink := events.FromContext(ctx, c.config.Events)
	retries := make(map[ErrorClass]int)

	for {
		if err := c.tracker.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		page, class, err := c.do(ctx, q)

		switch {
		case err == nil && class == ErrorClassNone:
			if n := retries[ErrorClassNetwork] + retries[ErrorClassRateLimit] + retries[ErrorClassApplication]; n > 0 {
				c.logger.Info().
					Int("page", q.Page).
					Int("retries", n).
					Msg("Request succeeded after retry")
			}
			c.storePage(ctx, q, page)
			// Politeness delay. A cancellation here is left for the caller
			// to notice: the page is already fetched and must not be lost.
			_ = c.sleep(ctx, c.config.RequestInterval)
			return page, nil

		case errors.Is(err, ErrContextCancelled):
			return nil, err

		case !shouldRetry(class):
			return nil, err
		}

		policy := c.RetryConfigForErrorClass(class)
		attempt := retries[class]
		if attempt >= policy.MaxRetries {
			retryExhaustedTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("error_class", string(class)).
				Int("retries", attempt).
				Int("page", q.Page).
				Err(err).
				Msg("Retry attempts exhausted")

			if class == ErrorClassRateLimit {
				return nil, fmt.Errorf("%w after %d retries: %w", ErrRateLimitExhausted, attempt, err)
			}
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt+1, err)
		}
		retries[class] = attempt + 1

		wait := withJitter(BackoffDelay(policy, attempt), policy.Jitter, c.rand)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		c.logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying request after backoff")

		ev := events.Event{Time: time.Now(), Attempt: attempt + 1, Wait: wait, Err: err}
		switch class {
		case ErrorClassRateLimit:
			ev.Type = events.RateLimited
			if rerr := c.tracker.RecordRateLimited(ctx, wait, reasonOf(err)); rerr != nil {
				c.logger.Warn().Err(rerr).Msg("Failed to share cool-down")
			}
		case ErrorClassNetwork:
			ev.Type = events.NetworkRetry
		default:
			ev.Type = events.ApplicationRetry
		}
		sink.Emit(ev)

		if err := c.sleep(ctx, wait); err != nil {
			c.logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}
}

// do performs one HTTP round trip and classifies the result.
func (c *Client) do(ctx context.Context, q Query) (*Page, ErrorClass, error) {
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(q), nil)
	if err != nil {
		return nil, ErrorClassClient, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("page", q.Page).
		Str("polygon", q.Box.String()).
		Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrorClassNone, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil, c.fail(ErrorClassNetwork, "network_error"), &ProviderError{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrorClassNone, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil, c.fail(ErrorClassNetwork, "read_error"), &ProviderError{Class: ErrorClassNetwork, HTTPStatus: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.fail(ErrorClassRateLimit, "429"), &ProviderError{Class: ErrorClassRateLimit, HTTPStatus: resp.StatusCode, Info: resp.Status}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(ErrorClassApplication, strconv.Itoa(resp.StatusCode)), &ProviderError{Class: ErrorClassApplication, HTTPStatus: resp.StatusCode, Info: resp.Status}
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.fail(ErrorClassNetwork, "malformed"), &ProviderError{Class: ErrorClassNetwork, HTTPStatus: resp.StatusCode, Info: "malformed body", Err: err}
	}

	class := ErrorClassNone
	if payload.Status != "1" || (payload.InfoCode != "" && payload.InfoCode != InfoCodeOK) {
		class = c.config.Codes.Classify(payload.InfoCode)
		if class == ErrorClassNone {
			// status "0" with a success code is still a failure
			class = ErrorClassApplication
		}
	}

	switch class {
	case ErrorClassNone:
		requestsTotal.WithLabelValues("ok").Inc()
		return &Page{Records: payload.records(), DeclaredTotal: payload.declaredTotal()}, ErrorClassNone, nil
	case ErrorClassNoMorePages:
		requestsTotal.WithLabelValues("end").Inc()
		return &Page{EndOfResults: true, DeclaredTotal: payload.declaredTotal()}, ErrorClassNone, nil
	default:
		c.fail(class, "info_"+payload.InfoCode)
		return nil, class, &ProviderError{Class: class, HTTPStatus: resp.StatusCode, InfoCode: payload.InfoCode, Info: payload.Info}
	}
}

// fail records metrics for a failed request and returns its class.
func (c *Client) fail(class ErrorClass, status string) ErrorClass {
	errorsTotal.WithLabelValues(string(class)).Inc()
	requestsTotal.WithLabelValues(status).Inc()
	c.logger.Debug().Str("class", string(class)).Str("status", status).Msg("Error classified")
	return class
}

func (c *Client) endpoint(q Query) string {
	params := url.Values{}
	params.Set("key", c.config.APIKey)
	params.Set("polygon", q.Box.PolygonParam())
	if q.Keyword != "" {
		params.Set("keywords", q.Keyword)
	}
	if q.Types != "" {
		params.Set("types", q.Types)
	}
	if q.City != "" {
		params.Set("city", q.City)
		params.Set("citylimit", "true")
	}
	params.Set("offset", strconv.Itoa(q.PageSize))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("extensions", "base")
	params.Set("output", "json")

	return c.config.BaseURL + c.config.Path + "?" + params.Encode()
}

func (c *Client) cachedPage(ctx context.Context, q Query) (*Page, bool) {
	if c.cache == nil {
		return nil, false
	}
	entry, err := c.cache.Get(ctx, q.cacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil, false
	}
	c.logger.Debug().Int("page", q.Page).Msg("Page served from cache")
	return &Page{
		Records:       entry.Records,
		DeclaredTotal: entry.DeclaredTotal,
		EndOfResults:  entry.EndOfResults,
		Cached:        true,
	}, true
}

func (c *Client) storePage(ctx context.Context, q Query, page *Page) {
	if c.cache == nil {
		return
	}
	entry := &cache.PageEntry{
		Records:       page.Records,
		DeclaredTotal: page.DeclaredTotal,
		EndOfResults:  page.EndOfResults,
	}
	if err := c.cache.Set(ctx, q.cacheKey(), entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache page")
	}
}

func reasonOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.InfoCode != "" {
			return pe.InfoCode
		}
		return strconv.Itoa(pe.HTTPStatus)
	}
	return "unknown"
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Tracker returns the shared rate-limit tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}
