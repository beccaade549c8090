package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Manager selects a limiter backend and enforces rate limits.
// Redis is preferred; after a Redis failure the in-memory limiter serves
// requests until the breaker closes again.
type Manager struct {
	settings      SettingsConfig
	nowFn         func() time.Time
	memoryLimiter Limiter
	redisLimiter  Limiter
	mu            sync.Mutex
	breakerUntil  time.Time
}

// NewManager constructs a Manager. A nil client keeps every counter in memory.
func NewManager(settings SettingsConfig, client *redis.Client, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Manager{
		settings:      settings,
		nowFn:         nowFn,
		memoryLimiter: NewMemoryLimiter(),
	}
	if client != nil {
		m.redisLimiter = NewRedisLimiter(client, settings.RedisPrefix)
	}
	return m
}

// Now returns the manager clock.
func (m *Manager) Now() time.Time {
	return m.nowFn()
}

// Allow checks whether a request from clientIP to endpoint should be allowed.
func (m *Manager) Allow(ctx context.Context, endpoint, clientIP string) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	rule := m.settings.Rule(endpoint)
	key := KeyFor(endpoint, clientIP)
	if !rule.Enabled() || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if m.redisLimiter != nil {
		if result, ok := m.allowRedis(ctx, key, rule, now); ok {
			return result, nil
		}
	}
	return m.memoryLimiter.Allow(ctx, key, rule, now)
}

func (m *Manager) allowRedis(ctx context.Context, key string, rule Rule, now time.Time) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	result, errAllow := m.redisLimiter.Allow(ctx, key, rule, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}
