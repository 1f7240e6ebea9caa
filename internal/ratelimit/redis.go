package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is the slice of the Redis API the limiter needs.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// NewRedisLimiter constructs a fixed-window limiter: at most limit requests
// per key per window, counted in Redis so the limit holds across instances.
func NewRedisLimiter(client RedisCounter, prefix string, window time.Duration, limit int64) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		window: window,
		limit:  limit,
	}
}

// RedisLimiter counts requests per key in fixed windows via INCR+EXPIRE.
type RedisLimiter struct {
	client RedisCounter
	prefix string
	window time.Duration
	limit  int64
}

// Allow increments the key's window counter and reports whether it is still
// within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// First hit in this window starts its clock.
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= l.limit, nil
}
