// Package notify delivers domain events to the notification dispatcher.
// Delivery is best effort: callers publish after their transaction commits
// and never observe a failure.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types.
const (
	EventDeliveryClaimed     = "delivery.claimed"
	EventDeliveryStatus      = "delivery.status_changed"
	EventDeliveryCompleted   = "delivery.completed"
	EventDeliveryCancelled   = "delivery.cancelled"
	EventDeliveryProblem     = "delivery.problem"
	EventPaymentReleased     = "payment.released"
	EventPaymentRefunded     = "payment.refunded"
	EventDocumentReviewed    = "document.reviewed"
	EventProfileApproved     = "profile.approved"
	EventWithdrawalReviewed  = "withdrawal.reviewed"
	EventWithdrawalFinalized = "withdrawal.finalized"
)

// Event is a notification addressed to a single user.
type Event struct {
	Type        string         `json:"type"`
	RecipientID uuid.UUID      `json:"recipient_id"`
	EntityID    uuid.UUID      `json:"entity_id"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Notifier hands an event to the outside world.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// DefaultMaxInFlight bounds concurrent background sends per Dispatcher.
const DefaultMaxInFlight = 64

// Dispatcher sends events asynchronously with a per-batch timeout. At most
// maxInFlight batches are sent at once; a batch arriving when all slots are
// taken is dropped and counted. A nil *Dispatcher drops everything.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	slots    chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	return NewBoundedDispatcher(notifier, timeout, DefaultMaxInFlight)
}

func NewBoundedDispatcher(notifier Notifier, timeout time.Duration, maxInFlight int) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, slots: make(chan struct{}, maxInFlight)}
}

// Dispatch sends events in the background. Failures, panics in the notifier
// and overflow are logged and counted, never returned.
func (d *Dispatcher) Dispatch(events ...Event) {
	if d == nil || d.notifier == nil || len(events) == 0 {
		return
	}
	now := time.Now().UTC()
	for i := range events {
		if events[i].OccurredAt.IsZero() {
			events[i].OccurredAt = now
		}
	}

	select {
	case d.slots <- struct{}{}:
	default:
		for _, ev := range events {
			observability.IncrementNotificationFailure(ev.Type)
		}
		zap.L().Warn("notification dispatcher saturated, dropping events",
			zap.String("event", events[0].Type),
			zap.Int("count", len(events)),
		)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		for _, ev := range events {
			d.send(ctx, ev)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.IncrementNotificationFailure(ev.Type)
			zap.L().Error("notifier panicked",
				zap.Any("panic", r),
				zap.String("event", ev.Type),
				zap.String("entity_id", ev.EntityID.String()),
			)
		}
	}()
	if err := d.notifier.Notify(ctx, ev); err != nil {
		observability.IncrementNotificationFailure(ev.Type)
		zap.L().Warn("notification dispatch failed",
			zap.Error(err),
			zap.String("event", ev.Type),
			zap.String("recipient_id", ev.RecipientID.String()),
			zap.String("entity_id", ev.EntityID.String()),
		)
	}
}

// Wait blocks until every in-flight dispatch has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier writes events to the structured log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info("notification",
		zap.String("event", event.Type),
		zap.String("recipient_id", event.RecipientID.String()),
		zap.String("entity_id", event.EntityID.String()),
		zap.Any("data", redact(event.Data)),
	)
	return nil
}

// secretKeys are event fields meant for the recipient only.
var secretKeys = map[string]struct{}{
	"validation_code": {},
}

func redact(data map[string]any) map[string]any {
	if len(data) == 0 {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := secretKeys[k]; ok {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}
