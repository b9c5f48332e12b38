package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy holds the retry schedule for one error class.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the pre-jitter delay.
	MaxDelay time.Duration

	// Multiplier grows the delay per retry. 1 gives a fixed delay; values
	// below 1 are treated as 2.
	Multiplier float64

	// Jitter adds a random extra delay in [0, Jitter*delay].
	Jitter float64
}

// DefaultNetworkPolicy is the schedule for transport failures.
func DefaultNetworkPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 4,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
	}
}

// DefaultRateLimitPolicy is the schedule for over-quota replies: longer
// base delay and a higher cap than transport retries.
func DefaultRateLimitPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  5 * time.Second,
		MaxDelay:   120 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
	}
}

// DefaultApplicationPolicy is the schedule for unexpected provider errors:
// two retries with a short fixed delay.
func DefaultApplicationPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   1 * time.Second,
		Multiplier: 1.0,
		Jitter:     0,
	}
}

// Validate checks the policy for values that make no sense.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0 (got %d)", p.MaxRetries)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("jitter must be >= 0 (got %v)", p.Jitter)
	}
	return nil
}

// BackoffDelay returns the pre-jitter delay before retry number attempt
// (0-based): BaseDelay * Multiplier^attempt, capped at MaxDelay. The result
// never decreases as attempt grows.
func BackoffDelay(p RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2.0
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// withJitter adds a random extra in [0, frac*d].
func withJitter(d time.Duration, frac float64, rnd func() float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*frac*rnd())
}

// RetryConfigForErrorClass returns the policy used for an error class.
func (c *Client) RetryConfigForErrorClass(errorClass ErrorClass) RetryPolicy {
	switch errorClass {
	case ErrorClassNetwork:
		return c.config.Network
	case ErrorClassRateLimit:
		return c.config.RateLimit
	case ErrorClassApplication:
		return c.config.Application
	default:
		return RetryPolicy{}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultRand() float64 { return rand.Float64() }
