package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDestination = json.RawMessage(`{"iban":"FR7630006000011234567890189"}`)

func TestMockRailSameKeyReturnsSameReference(t *testing.T) {
	rail := NewMockRail()
	rail.FailureRate = 0
	rail.MaxDelay = 0

	first, err := rail.InitiatePayout(context.Background(), "withdrawal:1", 40_000_000, "EUR", testDestination)
	require.NoError(t, err)
	again, err := rail.InitiatePayout(context.Background(), "withdrawal:1", 40_000_000, "EUR", testDestination)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := rail.InitiatePayout(context.Background(), "withdrawal:2", 40_000_000, "EUR", testDestination)
	require.NoError(t, err)
	assert.NotEmpty(t, other)
}

func TestMockRailRejectsBadInput(t *testing.T) {
	rail := NewMockRail()
	rail.MaxDelay = 0

	_, err := rail.InitiatePayout(context.Background(), "", 1, "EUR", testDestination)
	assert.Error(t, err)
	_, err = rail.InitiatePayout(context.Background(), "k", 0, "EUR", testDestination)
	assert.Error(t, err)
	_, err = rail.InitiatePayout(context.Background(), "k", 1, "EUR", nil)
	assert.Error(t, err)
}

func TestMockRailHonoursContext(t *testing.T) {
	rail := NewMockRail()
	rail.FailureRate = 0
	rail.MaxDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rail.InitiatePayout(ctx, "k", 1, "EUR", testDestination)
	assert.ErrorIs(t, err, context.Canceled)
}
