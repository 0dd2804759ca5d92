package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter counts handoff code attempts per delivery. Attempt counts
// first and then compares, so concurrent guesses cannot all slip under the
// limit. It is advisory: the authoritative store never depends on it.
type AttemptLimiter interface {
	// Attempt records one attempt and reports whether it is within the limit.
	Attempt(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

const attemptKeyPrefix = "handoff_attempts"

// RedisAttemptLimiter keeps a counter with a fixed window that starts at the
// first attempt.
type RedisAttemptLimiter struct {
	redis       redis.Cmdable
	maxAttempts int
	window      time.Duration
}

func NewRedisAttemptLimiter(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisAttemptLimiter) Attempt(ctx context.Context, key string) (bool, error) {
	k := attemptKey(key)
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("record attempt: %w", err)
	}
	return incr.Val() <= int64(l.maxAttempts), nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("reset attempt counter: %w", err)
	}
	return nil
}

func attemptKey(key string) string {
	return fmt.Sprintf("%s:%s", attemptKeyPrefix, key)
}

// MemoryAttemptLimiter is a single-process AttemptLimiter used when Redis is
// not configured.
type MemoryAttemptLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	counters    map[string]attemptWindow
}

type attemptWindow struct {
	count   int
	expires time.Time
}

func NewMemoryAttemptLimiter(maxAttempts int, window time.Duration) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		counters:    make(map[string]attemptWindow),
	}
}

func (l *MemoryAttemptLimiter) current(key string) attemptWindow {
	w, ok := l.counters[key]
	if ok && !l.now().Before(w.expires) {
		delete(l.counters, key)
		return attemptWindow{}
	}
	return w
}

func (l *MemoryAttemptLimiter) Attempt(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.current(key)
	if w.count == 0 {
		w.expires = l.now().Add(l.window)
	}
	w.count++
	l.counters[key] = w
	return w.count <= l.maxAttempts, nil
}

func (l *MemoryAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, key)
	return nil
}
