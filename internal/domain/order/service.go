package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/event"
	"github.com/xenking/shop-core/internal/domain/tx"
)

// Service exposes order lookups and administrative status changes.
type Service struct {
	orders Repository
	tx     tx.Transactor
	events event.Publisher
	lg     *zap.Logger
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, transactor tx.Transactor, events event.Publisher, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	if transactor == nil {
		transactor = tx.None
	}
	return &Service{
		orders: orders,
		tx:     transactor,
		events: events,
		lg:     lg,
		now:    time.Now,
	}
}

// Get returns an order owned by ownerID. Orders of other owners are reported
// as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Transition applies an administrative status change. Orders enter
// processing only through payment verification, and only paid orders can be
// completed.
func (s *Service) Transition(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, errors.Wrapf(ErrInvalidTransition, "unknown status %q", to)
	}
	if to == StatusProcessing {
		return nil, errors.Wrap(ErrInvalidTransition, "processing is set by payment verification")
	}

	var (
		o    *Order
		from Status
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		from = o.Status
		if !CanTransition(from, to) {
			return errors.Wrapf(ErrInvalidTransition, "%s to %s", from, to)
		}
		if to == StatusCompleted && !o.Paid() {
			return errors.Wrapf(ErrInvalidTransition, "order is unpaid (payment %s)", o.PaymentStatus)
		}

		payment := o.PaymentStatus
		if to == StatusRefunded && payment == PaymentCompleted {
			payment = PaymentRefunded
		}
		now := s.now().UTC()
		if err := s.orders.UpdateStatus(ctx, id, to, payment, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.Status, o.PaymentStatus, o.UpdatedAt = to, payment, now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	event.Emit(ctx, s.events, s.lg, event.New(event.OrderStatusChanged, o.ID, o.OwnerID, o.UpdatedAt, map[string]string{
		"from": string(from),
		"to":   string(to),
	}))
	return o, nil
}
