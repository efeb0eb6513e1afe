// Package payment verifies signed gateway callbacks and records payment
// attempts.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

var (
	// ErrSignatureMismatch is returned when a callback signature does not
	// match. It is a security event and never retried.
	ErrSignatureMismatch = apperr.New(apperr.SignatureMismatch, "payment could not be verified, please retry payment for this order")
	// ErrAlreadyVerified is returned for replays of an already verified
	// callback. Callers treat it as success.
	ErrAlreadyVerified = apperr.New(apperr.AlreadyVerified, "payment already verified")
	// ErrDuplicatePayment is returned by Repository.Insert when a completed
	// payment for the same gateway pair exists.
	ErrDuplicatePayment = apperr.New(apperr.ConstraintViolation, "payment already recorded")
	// ErrNotFound is returned when no payment matches.
	ErrNotFound = apperr.New(apperr.NotFound, "payment not found")
	// ErrOrderNotPayable is returned when a payment arrives for an order that
	// was cancelled or refunded.
	ErrOrderNotPayable = apperr.New(apperr.Conflict, "order can no longer be paid")
	// ErrInvalidCallback is returned for callbacks missing identifiers.
	ErrInvalidCallback = apperr.New(apperr.InvalidArgument, "payment callback is incomplete")
)

// Status is the outcome of a payment attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payment is one verification attempt.
type Payment struct {
	ID               string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Status           Status
	FailureReason    string
	CreatedAt        time.Time
}

// Repository stores payment attempts. At most one completed payment may exist
// per (gateway order id, gateway payment id).
type Repository interface {
	// Insert stores p, returning ErrDuplicatePayment when p is completed and
	// the gateway pair was already completed.
	Insert(ctx context.Context, p *Payment) error
	// FindCompleted returns the completed payment for the gateway pair or
	// ErrNotFound.
	FindCompleted(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*Payment, error)
	// ListByOrder returns all attempts for an order, oldest first.
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

// signedPayload is the message the gateway signs.
func signedPayload(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

// Sign returns the hex encoded HMAC-SHA256 the gateway sends for a payment.
func Sign(secret []byte, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signedPayload(gatewayOrderID, gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether signature authenticates the pair. The
// comparison runs in constant time.
func ValidSignature(secret []byte, gatewayOrderID, gatewayPaymentID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(signedPayload(gatewayOrderID, gatewayPaymentID))
	return hmac.Equal(got, mac.Sum(nil))
}

// GatewayOrderRequest asks the gateway to open an order for an amount.
type GatewayOrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Receipt is our reference, the order number.
	Receipt string
	Notes   map[string]string
}

// GatewayOrder is the gateway side order a shopper pays against.
type GatewayOrder struct {
	ID string
	// AmountMinor is the amount in the currency's minor unit.
	AmountMinor int64
	Currency    string
	// KeyID is the public key the client-side checkout needs.
	KeyID string
}

// Gateway creates gateway side orders.
type Gateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
}
