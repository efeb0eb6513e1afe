package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, gateway_order_id, gateway_payment_id, signature, status, failure_reason, created_at`

	// The partial unique index payments_completed_key admits any number of
	// failed attempts but one completed payment per gateway pair.
	insertPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (gateway_order_id, gateway_payment_id) WHERE status = 'completed' DO NOTHING`

	findCompletedPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE gateway_order_id = $1 AND gateway_payment_id = $2 AND status = 'completed'`

	listPaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at, id`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository over db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.q(ctx).Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.GatewayOrderID, p.GatewayPaymentID, p.Signature, p.Status, p.FailureReason, p.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert payment")
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrDuplicatePayment
	}
	return nil
}

func (r *PaymentRepository) FindCompleted(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*payment.Payment, error) {
	rows, err := r.db.q(ctx).Query(ctx, findCompletedPaymentSQL, gatewayOrderID, gatewayPaymentID)
	if err != nil {
		return nil, errors.Wrap(err, "find completed payment")
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[payment.Payment])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrap(err, "find completed payment")
	}
	return &p, nil
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	rows, err := r.db.q(ctx).Query(ctx, listPaymentsSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[payment.Payment])
}
