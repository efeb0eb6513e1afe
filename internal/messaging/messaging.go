// Package messaging delivers domain events to Kafka or to the log.
package messaging

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/event"
)

// Encode renders an event as a JSON document. Attributes are written in key
// order so equal events encode identically.
func Encode(e event.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(e.ID)
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Str(e.OrderID)
	enc.FieldStart("owner_id")
	enc.Str(e.OwnerID)
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.FieldStart("attributes")
	enc.ObjStart()
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		enc.FieldStart(k)
		enc.Str(e.Attributes[k])
	}
	enc.ObjEnd()
	enc.ObjEnd()
	return enc.Bytes()
}

var _ event.Publisher = (*LogPublisher)(nil)

// LogPublisher writes events to the log. It stands in for a broker in
// development.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements event.Publisher.
func (p *LogPublisher) Publish(_ context.Context, events ...event.Event) error {
	for _, e := range events {
		p.lg.Info("Event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.String("order_id", e.OrderID),
			zap.Any("attributes", e.Attributes),
		)
	}
	return nil
}
