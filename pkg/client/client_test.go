package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/poi-sweep/internal/testutil"
	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/geo"
	"github.com/Sternrassler/poi-sweep/pkg/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

var testBox = geo.BoundingBox{MinLng: 121.0, MinLat: 31.0, MaxLng: 122.0, MaxLat: 32.0}

// testConfig returns a config with millisecond retry schedules.
func testConfig(baseURL string) Config {
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = baseURL
	cfg.RequestInterval = 0
	cfg.Network = RetryPolicy{MaxRetries: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: 0.5}
	cfg.RateLimit = RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, Jitter: 0.5}
	cfg.Application = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	cfg.Budget = ratelimit.Config{}
	return cfg
}

func newTestClient(t *testing.T, cfg Config) (*Client, *events.Recorder) {
	t.Helper()

	rec := &events.Recorder{}
	cfg.Events = rec

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.SetHTTPClient(testutil.HTTPClient())
	t.Cleanup(func() { c.Close() })
	return c, rec
}

func testQuery(page int) Query {
	return Query{Keyword: "物业公司", City: "310000", Box: testBox, Page: page, PageSize: 25}
}

func samplePoints() []testutil.MockPOI {
	return []testutil.MockPOI{
		{ID: "B001", Name: "万科物业", Address: "浦东新区世纪大道1号", Tel: "021-1", Point: orb.Point{121.5, 31.2}},
		{ID: "B002", Name: "绿城物业", Point: orb.Point{121.6, 31.3}},
		{ID: "B003", Name: "界外物业", Point: orb.Point{123.0, 31.3}},
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.APIKey = " " },
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "negative request interval",
			mutate:      func(c *Config) { c.RequestInterval = -time.Second },
			expectError: true,
			errorMsg:    "request interval",
		},
		{
			name:        "invalid network policy",
			mutate:      func(c *Config) { c.Network.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "network retry policy",
		},
		{
			name:        "invalid rate limit policy",
			mutate:      func(c *Config) { c.RateLimit.MaxDelay = time.Millisecond },
			expectError: true,
			errorMsg:    "rate limit retry policy",
		},
		{
			name: "empty endpoint falls back to default",
			mutate: func(c *Config) {
				c.BaseURL = ""
				c.Path = ""
				c.Codes = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("key")
			tt.mutate(&cfg)

			_, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want it to contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("New() error = %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")

	if cfg.BaseURL != defaultBaseURL || cfg.Path != defaultPath {
		t.Errorf("endpoint = %s%s", cfg.BaseURL, cfg.Path)
	}
	if cfg.RequestInterval != 200*time.Millisecond {
		t.Errorf("RequestInterval = %v, want 200ms", cfg.RequestInterval)
	}
	if cfg.Network.MaxRetries != 4 || cfg.RateLimit.MaxRetries != 5 || cfg.Application.MaxRetries != 2 {
		t.Errorf("retry budgets = %d/%d/%d", cfg.Network.MaxRetries, cfg.RateLimit.MaxRetries, cfg.Application.MaxRetries)
	}
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		valid bool
	}{
		{name: "valid", query: testQuery(1), valid: true},
		{name: "types only", query: Query{Types: "120000", Box: testBox, Page: 1, PageSize: 25}, valid: true},
		{name: "no keyword or types", query: Query{Box: testBox, Page: 1, PageSize: 25}},
		{name: "page zero", query: Query{Keyword: "k", Box: testBox, Page: 0, PageSize: 25}},
		{name: "page size zero", query: Query{Keyword: "k", Box: testBox, Page: 1}},
		{name: "degenerate box", query: Query{Keyword: "k", Box: geo.BoundingBox{MinLng: 1, MinLat: 1, MaxLng: 1, MaxLat: 2}, Page: 1, PageSize: 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.SetPoints(samplePoints())

	c, rec := newTestClient(t, testConfig(mock.URL()))

	page, err := c.FetchPage(context.Background(), testQuery(1))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(page.Records))
	}
	if page.DeclaredTotal == nil || *page.DeclaredTotal != 2 {
		t.Errorf("DeclaredTotal = %v, want 2", page.DeclaredTotal)
	}
	if page.EndOfResults || page.Cached {
		t.Errorf("page flags = end:%v cached:%v", page.EndOfResults, page.Cached)
	}

	first := page.Records[0]
	if first.ID != "B001" || first.Name != "万科物业" || first.Phone != "021-1" || first.Location != "121.500000,31.200000" {
		t.Errorf("Records[0] = %+v", first)
	}
	if second := page.Records[1]; second.Address != "" || second.Phone != "" {
		t.Errorf("empty fields should decode to \"\", got %+v", second)
	}

	if n := len(rec.Events()); n != 0 {
		t.Errorf("events = %d, want none", n)
	}
}

func TestFetchPage_QueryParameters(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()

	c, _ := newTestClient(t, testConfig(mock.URL()))

	if _, err := c.FetchPage(context.Background(), testQuery(3)); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	queries := mock.GetQueries()
	if len(queries) != 1 {
		t.Fatalf("requests = %d, want 1", len(queries))
	}
	q := queries[0]

	want := map[string]string{
		"key":        "test-key",
		"keywords":   "物业公司",
		"city":       "310000",
		"citylimit":  "true",
		"offset":     "25",
		"page":       "3",
		"extensions": "base",
		"output":     "json",
		"polygon":    testBox.PolygonParam(),
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("param %s = %q, want %q", k, got, v)
		}
	}
	if q.Has("types") {
		t.Error("types should be omitted when empty")
	}
}

func TestFetchPage_MissingCount(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.SetPoints(samplePoints())
	mock.OmitCount = true

	c, _ := newTestClient(t, testConfig(mock.URL()))

	page, err := c.FetchPage(context.Background(), testQuery(1))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.DeclaredTotal != nil {
		t.Errorf("DeclaredTotal = %d, want nil", *page.DeclaredTotal)
	}
}

func TestFetchPage_NetworkRetryThenSuccess(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.SetPoints(samplePoints())
	mock.Enqueue(
		testutil.DroppedConnection(),
		testutil.MalformedResponse(),
		testutil.DroppedConnection(),
	)

	c, rec := newTestClient(t, testConfig(mock.URL()))

	page, err := c.FetchPage(context.Background(), testQuery(1))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(page.Records))
	}

	if got := mock.GetRequestCount(); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
	if got := rec.Count(events.NetworkRetry); got != 3 {
		t.Errorf("NetworkRetry events = %d, want 3", got)
	}

	for i, e := range rec.Events() {
		if e.Attempt != i+1 {
			t.Errorf("event %d attempt = %d, want %d", i, e.Attempt, i+1)
		}
		if e.Wait <= 0 || e.Wait > 7500*time.Microsecond {
			t.Errorf("event %d wait = %v out of range", i, e.Wait)
		}
	}
}

func TestFetchPage_NetworkRetryExhausted(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.Repeat(testutil.DroppedConnection(), 10)...)

	c, rec := newTestClient(t, testConfig(mock.URL()))

	_, err := c.FetchPage(context.Background(), testQuery(1))
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Class != ErrorClassNetwork {
		t.Errorf("errors.As(ProviderError) = %v", pe)
	}
	if got := mock.GetRequestCount(); got != 5 {
		t.Errorf("requests = %d, want 5 (1 + 4 retries)", got)
	}
	if got := rec.Count(events.NetworkRetry); got != 4 {
		t.Errorf("NetworkRetry events = %d, want 4", got)
	}
}

func TestFetchPage_RateLimitExhausted(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.Repeat(testutil.RateLimitResponse(), 10)...)

	c, rec := newTestClient(t, testConfig(mock.URL()))

	_, err := c.FetchPage(context.Background(), testQuery(1))
	if !IsRateLimitExhausted(err) {
		t.Fatalf("error = %v, want ErrRateLimitExhausted", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("rate limit exhaustion must be distinguishable from retry exhaustion")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.InfoCode != "10021" {
		t.Errorf("errors.As(ProviderError) = %v", pe)
	}
	if got := mock.GetRequestCount(); got != 4 {
		t.Errorf("requests = %d, want 4 (1 + 3 retries)", got)
	}
	if got := rec.Count(events.RateLimited); got != 3 {
		t.Errorf("RateLimited events = %d, want 3", got)
	}

	state, err := c.Tracker().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Reason != "10021" {
		t.Errorf("cool-down reason = %q, want 10021", state.Reason)
	}
}

func TestFetchPage_RateLimitThenSuccess(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
	}{
		{name: "info code", response: testutil.DailyQuotaResponse()},
		{name: "http 429", response: testutil.HTTPTooManyRequests()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAMap()
			defer mock.Close()
			mock.SetPoints(samplePoints())
			mock.Enqueue(tt.response)

			c, rec := newTestClient(t, testConfig(mock.URL()))

			page, err := c.FetchPage(context.Background(), testQuery(1))
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if len(page.Records) != 2 {
				t.Errorf("len(Records) = %d, want 2", len(page.Records))
			}
			if got := rec.Count(events.RateLimited); got != 1 {
				t.Errorf("RateLimited events = %d, want 1", got)
			}
		})
	}
}

func TestFetchPage_ApplicationRetry(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		mock := testutil.NewMockAMap()
		defer mock.Close()
		mock.SetPoints(samplePoints())
		mock.Enqueue(testutil.ServerErrorResponse(), testutil.UnknownErrorResponse())

		c, rec := newTestClient(t, testConfig(mock.URL()))

		if _, err := c.FetchPage(context.Background(), testQuery(1)); err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if got := rec.Count(events.ApplicationRetry); got != 2 {
			t.Errorf("ApplicationRetry events = %d, want 2", got)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		mock := testutil.NewMockAMap()
		defer mock.Close()
		mock.Enqueue(testutil.Repeat(testutil.UnknownErrorResponse(), 5)...)

		c, _ := newTestClient(t, testConfig(mock.URL()))

		_, err := c.FetchPage(context.Background(), testQuery(1))
		if !errors.Is(err, ErrRetryExhausted) {
			t.Fatalf("error = %v, want ErrRetryExhausted", err)
		}
		if got := mock.GetRequestCount(); got != 3 {
			t.Errorf("requests = %d, want 3", got)
		}
	})
}

func TestFetchPage_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.InvalidKeyResponse())

	c, rec := newTestClient(t, testConfig(mock.URL()))

	_, err := c.FetchPage(context.Background(), testQuery(1))

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.Class != ErrorClassClient || pe.InfoCode != "10001" {
		t.Errorf("ProviderError = %+v", pe)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors are not retried, so they cannot exhaust retries")
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if n := len(rec.Events()); n != 0 {
		t.Errorf("events = %d, want none", n)
	}
}

func TestFetchPage_NoMorePages(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.SetPoints(samplePoints())
	mock.EndCode = "29999"

	cfg := testConfig(mock.URL())
	cfg.Codes = DefaultCodeTable().With("29999", ErrorClassNoMorePages)
	c, _ := newTestClient(t, cfg)

	page, err := c.FetchPage(context.Background(), testQuery(2))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if !page.EndOfResults || len(page.Records) != 0 {
		t.Errorf("page = %+v, want end of results", page)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetchPage_CancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.Repeat(testutil.RateLimitResponse(), 10)...)

	cfg := testConfig(mock.URL())
	cfg.RateLimit = RetryPolicy{MaxRetries: 5, BaseDelay: 10 * time.Second, MaxDelay: time.Minute, Multiplier: 2}
	c, _ := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchPage(ctx, testQuery(1))
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("error = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("FetchPage() took %v after cancellation", elapsed)
	}
}

func TestFetchPage_PolitenessDelay(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.DroppedConnection())

	cfg := testConfig(mock.URL())
	cfg.RequestInterval = 123 * time.Millisecond
	c, _ := newTestClient(t, cfg)

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	c.rand = func() float64 { return 0 }

	if _, err := c.FetchPage(context.Background(), testQuery(1)); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	want := []time.Duration{time.Millisecond, 123 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestFetchPage_ContextSink(t *testing.T) {
	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.Enqueue(testutil.DroppedConnection())

	c, fallback := newTestClient(t, testConfig(mock.URL()))

	scoped := &events.Recorder{}
	ctx := events.NewContext(context.Background(), scoped)

	if _, err := c.FetchPage(ctx, testQuery(1)); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if scoped.Count(events.NetworkRetry) != 1 {
		t.Error("retry event should go to the context sink")
	}
	if len(fallback.Events()) != 0 {
		t.Error("fallback sink should be unused when the context carries one")
	}
}

func TestFetchPage_CacheHit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mock := testutil.NewMockAMap()
	defer mock.Close()
	mock.SetPoints(samplePoints())

	cfg := testConfig(mock.URL())
	cfg.Redis = rdb
	cfg.CacheTTL = time.Hour
	c, _ := newTestClient(t, cfg)

	first, err := c.FetchPage(context.Background(), testQuery(1))
	if err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}
	second, err := c.FetchPage(context.Background(), testQuery(1))
	if err != nil {
		t.Fatalf("second FetchPage() error = %v", err)
	}

	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if len(second.Records) != len(first.Records) || second.Records[0].ID != first.Records[0].ID {
		t.Errorf("cached records differ: %+v vs %+v", second.Records, first.Records)
	}
	if second.DeclaredTotal == nil || *second.DeclaredTotal != 2 {
		t.Errorf("cached DeclaredTotal = %v", second.DeclaredTotal)
	}

	// different page is a different key
	if _, err := c.FetchPage(context.Background(), testQuery(2)); err != nil {
		t.Fatalf("FetchPage(page 2) error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}
