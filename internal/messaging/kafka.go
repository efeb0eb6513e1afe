package messaging

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/event"
)

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ event.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes events to a topic keyed by order id, so events of
// one order land on one partition in order.
type KafkaPublisher struct {
	w  messageWriter
	lg *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, lg *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		lg: lg,
	}
}

// Publish implements event.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = kafka.Message{
			Key:   []byte(e.OrderID),
			Value: Encode(e),
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID)},
			},
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	p.lg.Debug("Published events", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
