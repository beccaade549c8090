package alert

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore holds suppression markers that expire on their own.
type MarkerStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key string, ttl time.Duration) error
}

// atomicMarkerStore is implemented by stores that can check and set in one step.
type atomicMarkerStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisMarkerStore keeps markers in Redis so every instance shares them.
type RedisMarkerStore struct {
	client *redis.Client
	prefix string
}

// NewRedisMarkerStore constructs a RedisMarkerStore.
func NewRedisMarkerStore(client *redis.Client, prefix string) *RedisMarkerStore {
	return &RedisMarkerStore{client: client, prefix: strings.TrimSpace(prefix)}
}

// Exists reports whether key is present.
func (s *RedisMarkerStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetWithTTL sets key with an expiry.
func (s *RedisMarkerStore) SetWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), "1", ttl).Err()
}

// SetIfAbsent sets key only when it is missing and reports whether it did.
func (s *RedisMarkerStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), "1", ttl).Result()
}

func (s *RedisMarkerStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// memoryMarkerLimit bounds the marker map before expired entries are swept.
const memoryMarkerLimit = 10000

// MemoryMarkerStore keeps markers in process memory for single-instance deployments.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	markers map[string]time.Time
}

// NewMemoryMarkerStore constructs a MemoryMarkerStore.
func NewMemoryMarkerStore(nowFn func() time.Time) *MemoryMarkerStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryMarkerStore{nowFn: nowFn, markers: make(map[string]time.Time)}
}

// Exists reports whether key is present and unexpired.
func (s *MemoryMarkerStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(key, s.nowFn()), nil
}

// SetWithTTL sets key with an expiry.
func (s *MemoryMarkerStore) SetWithTTL(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	s.sweepLocked(now)
	s.markers[key] = now.Add(ttl)
	return nil
}

// SetIfAbsent sets key only when it is missing and reports whether it did.
func (s *MemoryMarkerStore) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if s.liveLocked(key, now) {
		return false, nil
	}
	s.sweepLocked(now)
	s.markers[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryMarkerStore) liveLocked(key string, now time.Time) bool {
	expiresAt, ok := s.markers[key]
	if !ok {
		return false
	}
	if !now.Before(expiresAt) {
		delete(s.markers, key)
		return false
	}
	return true
}

func (s *MemoryMarkerStore) sweepLocked(now time.Time) {
	if len(s.markers) < memoryMarkerLimit {
		return
	}
	for key, expiresAt := range s.markers {
		if !now.Before(expiresAt) {
			delete(s.markers, key)
		}
	}
}
