package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter answers whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NewMemoryLimiter constructs a per-key token-bucket limiter that refills
// one token every rate, up to burst.
func NewMemoryLimiter(rate time.Duration, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// MemoryLimiter is an in-process Limiter. Used when Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	rate    time.Duration
	burst   int
	now     func() time.Time
	buckets map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// Allow consumes one token for the key if available.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rate <= 0 || l.burst <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	} else {
		l.refill(b, now)
	}

	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (l *MemoryLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed < l.rate {
		return
	}
	add := int(elapsed / l.rate)
	b.tokens += add
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = b.last.Add(time.Duration(add) * l.rate)
}
