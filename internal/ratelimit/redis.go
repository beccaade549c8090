package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.Enabled() || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now, rule.Window)
	reset := start.Add(rule.Window)
	redisKey := l.buildKey(key, start)
	ttl := (rule.Window + time.Second).Milliseconds()
	res, errEval := redisIncrScript.Run(ctx, l.client, []string{redisKey}, ttl).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	count, ok := res.(int64)
	if !ok {
		return Result{}, errors.New("rate limit redis: unexpected response type")
	}
	if count > int64(rule.Limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: rule.Limit - int(count), Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string, start time.Time) string {
	window := strconv.FormatInt(start.Unix(), 10)
	if l.prefix == "" {
		return "rl:" + key + ":" + window
	}
	return l.prefix + ":rl:" + key + ":" + window
}
