package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shop-core/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders. Order numbers are unique.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository over db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.db.run(ctx, func() error {
		if _, ok := r.db.orders[o.ID]; ok {
			return errors.Errorf("order %s already exists", o.ID)
		}
		for _, existing := range r.db.orders {
			if existing.Number == o.Number {
				return order.ErrNumberTaken
			}
		}
		r.db.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var out order.Order
	err := r.db.run(ctx, func() error {
		o, ok := r.db.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is Get; transactions are serialized.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) modify(ctx context.Context, id string, fn func(*order.Order) error) error {
	return r.db.run(ctx, func() error {
		o, ok := r.db.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		if err := fn(&o); err != nil {
			return err
		}
		r.db.orders[id] = o
		return nil
	})
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, payment order.PaymentStatus, at time.Time) error {
	return r.modify(ctx, id, func(o *order.Order) error {
		o.Status, o.PaymentStatus, o.UpdatedAt = status, payment, at
		return nil
	})
}

func (r *OrderRepository) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string, at time.Time) error {
	return r.modify(ctx, id, func(o *order.Order) error {
		if o.GatewayOrderID != "" {
			return order.ErrGatewayOrderBound
		}
		o.GatewayOrderID, o.UpdatedAt = gatewayOrderID, at
		return nil
	})
}

func (r *OrderRepository) FlagForReconciliation(ctx context.Context, id, notes string, at time.Time) error {
	return r.modify(ctx, id, func(o *order.Order) error {
		o.NeedsReconciliation = true
		o.ReconciliationNotes = appendNote(o.ReconciliationNotes, notes)
		o.UpdatedAt = at
		return nil
	})
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
