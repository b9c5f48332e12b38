// Package ratelimit shares the provider's request budget across every
// worker of a sweep. It combines a token bucket for the steady request rate
// with a cool-down deadline that is set whenever the provider reports that
// the quota or QPS limit was exceeded. The deadline lives in Redis when a
// client is configured, so parallel processes sharing one API key back off
// together.
package ratelimit

import (
	"time"
)

// Redis keys for cool-down state storage. The prefix is configurable.
const (
	RedisKeyCooldownUntil = "rate_limit:cooldown_until"
	RedisKeyLastReason    = "rate_limit:last_reason"
)

// CooldownState is the shared back-off state.
type CooldownState struct {
	// Until is the moment requests may resume. Zero means no cool-down.
	Until time.Time `json:"until"`

	// Reason is the provider code or status that triggered the cool-down.
	Reason string `json:"reason,omitempty"`
}

// IsActive reports whether requests must still wait at time now.
func (s *CooldownState) IsActive(now time.Time) bool {
	return !s.Until.IsZero() && now.Before(s.Until)
}

// Remaining returns how long requests must wait from now. Returns 0 when
// the cool-down has passed.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	if !s.IsActive(now) {
		return 0
	}
	return s.Until.Sub(now)
}

// Extend moves Until forward to until if that is later. Returns true if the
// state changed.
func (s *CooldownState) Extend(until time.Time, reason string) bool {
	if !until.After(s.Until) {
		return false
	}
	s.Until = until
	s.Reason = reason
	return true
}
