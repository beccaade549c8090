package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the wait until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || r.Reset.IsZero() {
		return 0
	}
	wait := r.Reset.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	if rounded := wait.Truncate(time.Second); rounded != wait {
		return rounded + time.Second
	}
	return wait
}

// Rule is a request budget per fixed window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule throttles anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error)
}

// windowStart returns the start of the fixed window containing now.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}
