package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/shop-core/internal/domain/event"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func testEvent() event.Event {
	return event.Event{
		ID:         "e1",
		Type:       event.PaymentVerified,
		OrderID:    "o1",
		OwnerID:    "u1",
		OccurredAt: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
		Attributes: map[string]string{"payment_id": "pay_1", "amount": "115.00"},
	}
}

func TestEncode(t *testing.T) {
	got := Encode(testEvent())
	assert.JSONEq(t, `{
		"id": "e1",
		"type": "payment.verified",
		"order_id": "o1",
		"owner_id": "u1",
		"occurred_at": "2025-06-15T10:30:00Z",
		"attributes": {"amount": "115.00", "payment_id": "pay_1"}
	}`, string(got))
	assert.Equal(t, got, Encode(testEvent()), "stable output")
}

func TestKafkaPublisher(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaPublisher{w: w, lg: zap.NewNop()}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o1", string(w.msgs[0].Key))
	assert.Equal(t, "payment.verified", string(w.msgs[0].Headers[0].Value))

	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, w.msgs, 1)

	w.err = errors.New("broker down")
	require.Error(t, p.Publish(context.Background(), testEvent()))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), testEvent(), testEvent()))
	entries := logs.FilterMessage("Event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "payment.verified", entries[0].ContextMap()["event_type"])
}
