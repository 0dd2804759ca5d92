package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"go.uber.org/zap"
)

// PayoutProcessor starts external transfers for approved withdrawals.
// *service.WithdrawalService implements it.
type PayoutProcessor interface {
	ProcessPayouts(ctx context.Context, batchSize int32) error
}

// PayoutWorker polls approved withdrawal requests and hands them to the
// payout rail. Concurrent instances are safe: claims use FOR UPDATE SKIP LOCKED.
type PayoutWorker struct {
	processor    PayoutProcessor
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewPayoutWorker creates a worker polling every 10s in batches of 10.
func NewPayoutWorker(processor PayoutProcessor) *PayoutWorker {
	return &PayoutWorker{
		processor:    processor,
		pollInterval: 10 * time.Second,
		batchSize:    10,
		stopCh:       make(chan struct{}),
	}
}

func (w *PayoutWorker) WithPollInterval(interval time.Duration) *PayoutWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

func (w *PayoutWorker) WithBatchSize(size int32) *PayoutWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is done.
func (w *PayoutWorker) Start(ctx context.Context) {
	zap.L().Info("payout worker starting", zap.Duration("poll_interval", w.pollInterval), zap.Int32("batch_size", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("payout worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("payout worker stop signal received")
			return
		case <-ticker.C:
			_ = w.ProcessOnce(ctx)
		}
	}
}

func (w *PayoutWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// ProcessOnce runs a single batch immediately.
func (w *PayoutWorker) ProcessOnce(ctx context.Context) error {
	if err := w.processor.ProcessPayouts(ctx, w.batchSize); err != nil {
		observability.IncrementWorkerRun("payout", "failed")
		zap.L().Error("payout batch failed", zap.Error(err))
		return err
	}
	observability.IncrementWorkerRun("payout", "success")
	return nil
}

func (w *PayoutWorker) String() string {
	return fmt.Sprintf("PayoutWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
