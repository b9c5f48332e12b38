package ratelimit

import (
	"testing"
	"time"
)

func TestCooldownState_IsActive(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		until     time.Time
		active    bool
		remaining time.Duration
	}{
		{name: "zero state", until: time.Time{}, active: false},
		{name: "past", until: now.Add(-time.Second), active: false},
		{name: "exactly now", until: now, active: false},
		{name: "future", until: now.Add(3 * time.Second), active: true, remaining: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &CooldownState{Until: tt.until}
			if got := s.IsActive(now); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
			if got := s.Remaining(now); got != tt.remaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.remaining)
			}
		})
	}
}

func TestCooldownState_ExtendOnlyForward(t *testing.T) {
	now := time.Now()
	s := &CooldownState{}

	if !s.Extend(now.Add(10*time.Second), "10004") {
		t.Fatal("Extend() from zero should change state")
	}
	if s.Extend(now.Add(5*time.Second), "10003") {
		t.Error("Extend() to an earlier deadline should be ignored")
	}
	if s.Reason != "10004" {
		t.Errorf("Reason = %q, want 10004", s.Reason)
	}
	if !s.Extend(now.Add(20*time.Second), "429") || s.Reason != "429" {
		t.Errorf("Extend() to a later deadline should win, reason = %q", s.Reason)
	}
}
