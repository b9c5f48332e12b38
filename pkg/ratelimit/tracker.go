package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poi_ratelimit_cooldowns_total",
		Help: "Total number of cool-downs recorded after provider rate-limit responses",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poi_ratelimit_wait_seconds",
		Help:    "Time requests spent waiting for the shared request budget",
		Buckets: []float64{0, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})

	stateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poi_ratelimit_state_errors_total",
		Help: "Redis errors while reading or writing shared cool-down state",
	})
)

// Config holds tracker configuration.
type Config struct {
	// RequestsPerSecond is the steady request budget across all workers.
	// Zero or negative disables the token bucket.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int

	// KeyPrefix namespaces the Redis keys, typically per API key.
	KeyPrefix string
}

// DefaultConfig returns a budget that fits the free AMap tier.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 3,
		Burst:             1,
		KeyPrefix:         "poi",
	}
}

// Tracker gates every outgoing request on the shared budget.
type Tracker struct {
	redis   *redis.Client
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger

	mu    sync.Mutex
	local CooldownState

	now func() time.Time
}

// NewTracker creates a tracker. redisClient may be nil, in which case the
// cool-down is only shared within this process.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Tracker{
		redis:   redisClient,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Tracker) key(name string) string {
	if t.config.KeyPrefix == "" {
		return name
	}
	return t.config.KeyPrefix + ":" + name
}

// GetState returns the current cool-down state. With Redis configured the
// shared state is read and merged into the local copy.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	t.mu.Lock()
	state := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return &state, nil
	}

	shared, err := t.sharedState(ctx)
	if err != nil {
		return &state, err
	}
	state.Extend(shared.Until, shared.Reason)
	return &state, nil
}

// sharedState reads only the Redis copy of the cool-down.
func (t *Tracker) sharedState(ctx context.Context) (CooldownState, error) {
	var state CooldownState

	untilMs, err := t.redis.Get(ctx, t.key(RedisKeyCooldownUntil)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("get cooldown until: %w", err)
	}

	reason, err := t.redis.Get(ctx, t.key(RedisKeyLastReason)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return state, fmt.Errorf("get cooldown reason: %w", err)
	}

	state.Extend(time.UnixMilli(untilMs), reason)
	return state, nil
}

// RecordRateLimited starts or extends a cool-down of the given length.
func (t *Tracker) RecordRateLimited(ctx context.Context, wait time.Duration, reason string) error {
	until := t.now().Add(wait)

	t.mu.Lock()
	changed := t.local.Extend(until, reason)
	t.mu.Unlock()

	if changed {
		cooldownsTotal.Inc()
		t.logger.Warn().
			Str("reason", reason).
			Dur("cooldown", wait).
			Time("until", until).
			Msg("Provider rate limit hit - cooling down")
	}

	if t.redis == nil {
		return nil
	}

	shared, err := t.sharedState(ctx)
	if err != nil {
		stateErrorsTotal.Inc()
		return err
	}
	if !until.After(shared.Until) {
		return nil
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, t.key(RedisKeyCooldownUntil), strconv.FormatInt(until.UnixMilli(), 10), wait)
	pipe.Set(ctx, t.key(RedisKeyLastReason), reason, wait)
	if _, err := pipe.Exec(ctx); err != nil {
		stateErrorsTotal.Inc()
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	return nil
}

// Wait blocks until any cool-down has passed and a token is available.
// It returns ctx.Err() if the context ends first. Redis failures are logged
// and the local state is used instead.
func (t *Tracker) Wait(ctx context.Context) error {
	start := t.now()
	defer func() {
		waitSeconds.Observe(t.now().Sub(start).Seconds())
	}()

	state, err := t.GetState(ctx)
	if err != nil {
		stateErrorsTotal.Inc()
		t.logger.Warn().Err(err).Msg("Shared rate limit state unavailable - using local state")
	}

	if d := state.Remaining(t.now()); d > 0 {
		t.logger.Debug().
			Dur("wait", d).
			Str("reason", state.Reason).
			Msg("Waiting for provider cool-down")

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for request token: %w", err)
		}
	}

	return nil
}
