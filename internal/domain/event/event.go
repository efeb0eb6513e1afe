// Package event defines the domain events emitted after order and payment
// state changes.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderStatusChanged Type = "order.status_changed"
	PaymentVerified    Type = "payment.verified"
	PaymentFailed      Type = "payment.failed"
	InventoryShortage  Type = "inventory.shortage"
)

// Event is a notification about a committed state change.
type Event struct {
	ID         string
	Type       Type
	OrderID    string
	OwnerID    string
	OccurredAt time.Time
	Attributes map[string]string
}

// New creates an event with a fresh id.
func New(t Type, orderID, ownerID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OrderID:    orderID,
		OwnerID:    ownerID,
		OccurredAt: at.UTC(),
		Attributes: attrs,
	}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Emit publishes events after a commit. Delivery failures are logged and
// swallowed: the state change they describe has already happened.
func Emit(ctx context.Context, p Publisher, lg *zap.Logger, events ...Event) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		for _, e := range events {
			lg.Warn("Failed to publish event",
				zap.Error(err),
				zap.String("event_type", string(e.Type)),
				zap.String("order_id", e.OrderID),
			)
		}
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
