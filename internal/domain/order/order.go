// Package order builds immutable orders from carts and tracks their status.
package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = apperr.New(apperr.NotFound, "order not found")
	// ErrEmptyCart is returned when building an order from an empty cart.
	ErrEmptyCart = apperr.New(apperr.EmptyCart, "cart is empty")
	// ErrItemUnavailable is returned when a cart line refers to a product or
	// variant that no longer exists.
	ErrItemUnavailable = apperr.New(apperr.NotFound, "item no longer available")
	// ErrInvalidAmount is returned for negative tax, shipping or discount.
	ErrInvalidAmount = apperr.New(apperr.InvalidArgument, "charges must not be negative")
	// ErrNumberTaken is returned by Repository.Create when the order number is
	// already in use.
	ErrNumberTaken = apperr.New(apperr.ConstraintViolation, "order number already in use")
	// ErrOrderNumberExhausted is returned when no free order number was found.
	ErrOrderNumberExhausted = apperr.New(apperr.OrderNumberExhausted, "could not allocate an order number, please retry")
	// ErrInvalidTransition is returned for status changes the state machine
	// does not allow.
	ErrInvalidTransition = apperr.New(apperr.Conflict, "order status change not allowed")
	// ErrGatewayOrderBound is returned by Repository.SetGatewayOrder when the
	// order already has a gateway order.
	ErrGatewayOrderBound = apperr.New(apperr.Conflict, "payment already started for this order")
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusPaymentFailed Status = "payment_failed"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusPaymentFailed, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

var transitions = map[Status][]Status{
	StatusPending:       {StatusProcessing, StatusPaymentFailed, StatusCancelled, StatusRefunded},
	StatusPaymentFailed: {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing:    {StatusCompleted, StatusCancelled, StatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Order is a placed order. Items and monetary fields never change after
// creation; only status fields and reconciliation flags do.
type Order struct {
	ID            string
	Number        string
	OwnerID       string
	Status        Status
	PaymentStatus PaymentStatus

	SubTotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
	Currency       string
	CouponCode     string

	ShippingAddress account.Address
	BillingAddress  account.Address
	PaymentMethod   account.PaymentMethod

	GatewayOrderID      string
	NeedsReconciliation bool
	ReconciliationNotes string

	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paid reports whether a payment was captured for the order.
func (o *Order) Paid() bool {
	return o.PaymentStatus == PaymentCompleted || o.PaymentStatus == PaymentRefunded
}

// Item is a purchased line as it was at order time.
type Item struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	// Snapshot is the product and variant document at purchase time.
	Snapshot json.RawMessage `json:"snapshot"`
}

// Repository persists orders.
type Repository interface {
	// Create stores a new order with its items, returning ErrNumberTaken when
	// the order number collides.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads the order and locks it for the surrounding
	// transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, payment PaymentStatus, at time.Time) error
	// SetGatewayOrder binds a gateway order once, returning
	// ErrGatewayOrderBound if one is already bound.
	SetGatewayOrder(ctx context.Context, id, gatewayOrderID string, at time.Time) error
	// FlagForReconciliation marks the order for manual review, appending
	// notes to any existing ones.
	FlagForReconciliation(ctx context.Context, id, notes string, at time.Time) error
}
