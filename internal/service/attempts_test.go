package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptLimiter(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryAttemptLimiter(3, 15*time.Minute)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		ok, err := l.Attempt(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Attempt(ctx, "d1")
	assert.False(t, ok)

	other, _ := l.Attempt(ctx, "d2")
	assert.True(t, other, "counters are per key")

	// The window starts at the first attempt.
	clock = clock.Add(15 * time.Minute)
	ok, _ = l.Attempt(ctx, "d1")
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "d1"))
	for i := 0; i < 3; i++ {
		ok, _ = l.Attempt(ctx, "d1")
		assert.True(t, ok)
	}
}

func TestMemoryAttemptLimiterHoldsUnderConcurrency(t *testing.T) {
	l := NewMemoryAttemptLimiter(5, time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Attempt(context.Background(), "d1"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}
