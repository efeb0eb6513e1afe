package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/order"
)

const (
	orderColumns = `id, number, owner_id, status, payment_status,
		sub_total, tax_amount, shipping_amount, discount_amount, grand_total, currency, coupon_code,
		shipping_address, billing_address, payment_method,
		gateway_order_id, needs_reconciliation, reconciliation_notes, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT ON CONSTRAINT orders_number_key DO NOTHING`

	createOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, variant_id, sku, name,
		unit_price, quantity, line_total, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	getOrderItemsSQL = `SELECT product_id, variant_id, sku, name, unit_price, quantity, line_total, snapshot
		FROM order_items WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, payment_status = $3, updated_at = $4 WHERE id = $1`

	setGatewayOrderSQL = `UPDATE orders SET gateway_order_id = $2, updated_at = $3
		WHERE id = $1 AND gateway_order_id = ''`

	flagOrderSQL = `UPDATE orders SET needs_reconciliation = TRUE,
		reconciliation_notes = CASE WHEN reconciliation_notes = '' THEN $2
			ELSE reconciliation_notes || E'\n' || $2 END,
		updated_at = $3
		WHERE id = $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository. Items live in order_items and
// are written once with the order.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository over db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the order and its items atomically. A number collision
// rolls back only this insert, leaving the caller's transaction usable.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.db.atomic(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.OwnerID, o.Status, o.PaymentStatus,
			o.SubTotal, o.TaxAmount, o.ShippingAmount, o.DiscountAmount, o.GrandTotal, o.Currency, o.CouponCode,
			o.ShippingAddress, o.BillingAddress, o.PaymentMethod,
			o.GatewayOrderID, o.NeedsReconciliation, o.ReconciliationNotes, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "create order %q", o.ID)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNumberTaken
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(createOrderItemSQL,
				o.ID, i, it.ProductID, it.VariantID, it.SKU, it.Name,
				it.UnitPrice, it.Quantity, it.LineTotal, it.Snapshot,
			)
		}
		if err := q.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "create items of order %q", o.ID)
		}
		return nil
	})
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	q := r.db.q(ctx)
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	rows, err = q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of order %q", id)
	}
	o.Items, err = pgx.CollectRows(rows, pgx.RowToStructByPos[order.Item])
	if err != nil {
		return nil, errors.Wrapf(err, "get items of order %q", id)
	}
	return &o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, payment order.PaymentStatus, at time.Time) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderStatusSQL, id, status, payment, at)
	if err != nil {
		return errors.Wrapf(err, "update status of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string, at time.Time) error {
	q := r.db.q(ctx)
	tag, err := q.Exec(ctx, setGatewayOrderSQL, id, gatewayOrderID, at)
	if err != nil {
		return errors.Wrapf(err, "set gateway order of %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrGatewayOrderBound
}

func (r *OrderRepository) FlagForReconciliation(ctx context.Context, id, notes string, at time.Time) error {
	tag, err := r.db.q(ctx).Exec(ctx, flagOrderSQL, id, notes, at)
	if err != nil {
		return errors.Wrapf(err, "flag order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.OwnerID, &o.Status, &o.PaymentStatus,
		&o.SubTotal, &o.TaxAmount, &o.ShippingAmount, &o.DiscountAmount, &o.GrandTotal, &o.Currency, &o.CouponCode,
		&o.ShippingAddress, &o.BillingAddress, &o.PaymentMethod,
		&o.GatewayOrderID, &o.NeedsReconciliation, &o.ReconciliationNotes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
