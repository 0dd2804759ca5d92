package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PayoutRail moves money out of the platform to a withdrawal destination.
type PayoutRail interface {
	// InitiatePayout starts an external transfer and returns the rail's
	// reference. Calls sharing an idempotency key start at most one transfer
	// and return the same reference. Completion is confirmed out of band by
	// an operator.
	InitiatePayout(ctx context.Context, idempotencyKey string, amountMicros int64, currency string, destination json.RawMessage) (string, error)
}

// MockRail simulates an external payout rail. It introduces a short random
// delay and fails FailureRate of the time.
type MockRail struct {
	FailureRate float64
	MaxDelay    time.Duration

	mu   sync.Mutex
	sent map[string]string
}

// NewMockRail creates a MockRail with default settings.
func NewMockRail() *MockRail {
	return &MockRail{
		FailureRate: 0.1,
		MaxDelay:    2 * time.Second,
		sent:        make(map[string]string),
	}
}

// InitiatePayout returns a fake reference of the form MOCK-YYYYMMDD-HHMMSS-XXXXX.
func (g *MockRail) InitiatePayout(ctx context.Context, idempotencyKey string, amountMicros int64, currency string, destination json.RawMessage) (string, error) {
	if idempotencyKey == "" {
		return "", fmt.Errorf("payout idempotency key is required")
	}
	if amountMicros <= 0 {
		return "", fmt.Errorf("invalid payout amount: %d", amountMicros)
	}
	if len(destination) == 0 {
		return "", fmt.Errorf("payout destination is required")
	}
	if ref, ok := g.lookup(idempotencyKey); ok {
		return ref, nil
	}

	if g.MaxDelay > 0 {
		delay := time.Duration(rand.Int63n(int64(g.MaxDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("payout rail call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("payout rail temporarily unavailable")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.sent[idempotencyKey]; ok {
		return ref, nil
	}
	if g.sent == nil {
		g.sent = make(map[string]string)
	}
	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	g.sent[idempotencyKey] = ref
	return ref, nil
}

func (g *MockRail) lookup(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.sent[key]
	return ref, ok
}
