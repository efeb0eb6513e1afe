package memory

import (
	"context"
	"slices"

	"github.com/xenking/shop-core/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository stores payment attempts.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository over db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) completed(gatewayOrderID, gatewayPaymentID string) (payment.Payment, bool) {
	for _, p := range r.db.payments {
		if p.Status == payment.StatusCompleted &&
			p.GatewayOrderID == gatewayOrderID &&
			p.GatewayPaymentID == gatewayPaymentID {
			return p, true
		}
	}
	return payment.Payment{}, false
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	return r.db.run(ctx, func() error {
		if p.Status == payment.StatusCompleted {
			if _, ok := r.completed(p.GatewayOrderID, p.GatewayPaymentID); ok {
				return payment.ErrDuplicatePayment
			}
		}
		// Append to a fresh backing array so snapshots never see the write.
		r.db.payments = append(slices.Clip(r.db.payments), *p)
		return nil
	})
}

func (r *PaymentRepository) FindCompleted(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*payment.Payment, error) {
	var out payment.Payment
	err := r.db.run(ctx, func() error {
		p, ok := r.completed(gatewayOrderID, gatewayPaymentID)
		if !ok {
			return payment.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	var out []payment.Payment
	err := r.db.run(ctx, func() error {
		for _, p := range r.db.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, err
}
