package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitResult describes the state of a window after one hit
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// RateLimiter counts hits per key in fixed windows
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

func newResult(count int64, limit int, resetAfter time.Duration) RateLimitResult {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
}

// fixedWindowScript increments the key, starts its window on the first hit and
// returns the count with the remaining window in milliseconds
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimiter shares windows across instances through Redis. When Redis
// fails it answers from an in-process limiter instead of failing requests.
type RedisRateLimiter struct {
	client   *redisclient.Client
	fallback *MemoryRateLimiter
	logger   *logging.SafeLogger
}

// NewRedisRateLimiter creates a limiter over client
func NewRedisRateLimiter(client *redisclient.Client, logger *logging.SafeLogger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		fallback: NewMemoryRateLimiter(),
		logger:   logger.Named("rate_limiter"),
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	values, err := l.client.RunScript(ctx, fixedWindowScript, []string{rateLimitKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err == nil && len(values) != 2 {
		err = fmt.Errorf("unexpected rate limit script reply: %v", values)
	}
	if err != nil {
		l.logger.Warn("redis rate limiter unavailable, using in-process window",
			zap.String("key", key),
			zap.Error(err))
		return l.fallback.Allow(ctx, key, limit, window)
	}

	return newResult(values[0], limit, time.Duration(values[1])*time.Millisecond), nil
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryRateLimiter keeps fixed windows in process
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewMemoryRateLimiter creates an in-process limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}
	w.count++

	return newResult(w.count, limit, w.resetAt.Sub(now)), nil
}

// CleanupExpired removes windows that have already reset
func (l *MemoryRateLimiter) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked windows
func (l *MemoryRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
