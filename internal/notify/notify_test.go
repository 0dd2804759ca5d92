package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestDispatcherDeliversAllEvents(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, time.Second)

	d.Dispatch(
		Event{Type: EventDeliveryClaimed, RecipientID: uuid.New()},
		Event{Type: EventPaymentReleased, RecipientID: uuid.New()},
	)
	d.Wait()

	require.Len(t, rec.events, 2)
	assert.Equal(t, EventDeliveryClaimed, rec.events[0].Type)
	assert.False(t, rec.events[0].OccurredAt.IsZero())
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("broker down")}
	d := NewDispatcher(rec, time.Second)

	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventDeliveryCompleted, RecipientID: uuid.New()})
		d.Wait()
	})
	assert.Len(t, rec.events, 1)
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventDeliveryClaimed})
		d.Wait()
	})
}

func TestKafkaNotifierKeysByRecipient(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifierWithWriter(w)
	recipient := uuid.New()

	err := n.Notify(context.Background(), Event{
		Type:        EventDeliveryCompleted,
		RecipientID: recipient,
		EntityID:    uuid.New(),
		Data:        map[string]any{"amount_micros": 20_000_000},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, recipient.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventDeliveryCompleted, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, recipient, decoded.RecipientID)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	n := NewKafkaNotifierWithWriter(&fakeWriter{err: errors.New("leader not available")})
	err := n.Notify(context.Background(), Event{Type: EventDeliveryClaimed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish delivery.claimed")
}

type panickingNotifier struct{ calls int }

func (p *panickingNotifier) Notify(context.Context, Event) error {
	p.calls++
	panic("notifier bug")
}

func TestDispatcherRecoversNotifierPanic(t *testing.T) {
	n := &panickingNotifier{}
	d := NewDispatcher(n, time.Second)

	assert.NotPanics(t, func() {
		d.Dispatch(
			Event{Type: EventDeliveryClaimed, RecipientID: uuid.New()},
			Event{Type: EventPaymentReleased, RecipientID: uuid.New()},
		)
		d.Wait()
	})
	assert.Equal(t, 2, n.calls, "a panic on one event does not stop the batch")
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	events  int
}

func (b *blockingNotifier) Notify(ctx context.Context, _ Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	b.mu.Lock()
	b.events++
	b.mu.Unlock()
	return nil
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{})}
	d := NewBoundedDispatcher(n, time.Minute, 2)

	for i := 0; i < 5; i++ {
		d.Dispatch(Event{Type: EventDeliveryStatus, RecipientID: uuid.New()})
	}
	close(n.release)
	d.Wait()

	assert.Equal(t, 2, n.events)

	// Slots are returned once a batch finishes.
	d.Dispatch(Event{Type: EventDeliveryStatus, RecipientID: uuid.New()})
	d.Wait()
	assert.Equal(t, 3, n.events)
}

func TestLogNotifierRedactsHandoffCode(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	data := map[string]any{"validation_code": "123456", "deliverer_id": "d-1"}
	require.NoError(t, n.Notify(context.Background(), Event{Type: EventDeliveryClaimed, RecipientID: uuid.New(), Data: data}))

	require.Equal(t, 1, logs.Len())
	logged, ok := logs.All()[0].ContextMap()["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[redacted]", logged["validation_code"])
	assert.Equal(t, "d-1", logged["deliverer_id"])
	assert.Equal(t, "123456", data["validation_code"], "the event itself is untouched")
}
