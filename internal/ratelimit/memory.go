package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryPruneThreshold bounds the number of counters kept before stale windows are dropped.
const memoryPruneThreshold = 10000

type memoryEntry struct {
	window time.Time
	reset  time.Time
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.Enabled() || key == "" {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now, rule.Window)
	reset := start.Add(rule.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.counters) >= memoryPruneThreshold {
		l.pruneLocked(now)
	}
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: start, reset: reset}
		l.counters[key] = entry
	}
	if !entry.window.Equal(start) {
		entry.window = start
		entry.reset = reset
		entry.count = 0
	}
	if entry.count >= rule.Limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: rule.Limit - entry.count, Reset: reset}, nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.counters {
		if !now.Before(entry.reset) {
			delete(l.counters, key)
		}
	}
}
