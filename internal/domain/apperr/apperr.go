// Package apperr defines the error kinds shared by the shop domain packages.
//
// Domain packages declare their sentinel errors with New so that callers (the
// HTTP layer in particular) can classify any wrapped error with KindOf without
// knowing every sentinel.
package apperr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a domain failure.
type Kind uint8

const (
	// Internal is an unexpected failure. Its cause is logged, never shown.
	Internal Kind = iota
	// NotFound covers missing products, variants, lines, addresses and orders.
	NotFound
	// InvalidQuantity is a non-positive or otherwise unusable quantity.
	InvalidQuantity
	// EmptyCart is returned when an order is built from a cart without lines.
	EmptyCart
	// SignatureMismatch is a payment callback whose signature does not verify.
	SignatureMismatch
	// AlreadyVerified is an idempotent replay of a verified payment.
	AlreadyVerified
	// OrderNumberExhausted means no unique order number was found in time.
	OrderNumberExhausted
	// InsufficientInventory is a warning-level shortage recorded on an order.
	InsufficientInventory
	// ConstraintViolation is a storage constraint that could not be retried.
	ConstraintViolation
	// InvalidArgument is malformed caller input.
	InvalidArgument
	// Conflict is a state conflict such as an illegal status transition.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidQuantity:
		return "invalid_quantity"
	case EmptyCart:
		return "empty_cart"
	case SignatureMismatch:
		return "signature_mismatch"
	case AlreadyVerified:
		return "already_verified"
	case OrderNumberExhausted:
		return "order_number_exhausted"
	case InsufficientInventory:
		return "insufficient_inventory"
	case ConstraintViolation:
		return "constraint_violation"
	case InvalidArgument:
		return "invalid_argument"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified domain error with a short user-facing message.
type Error struct {
	kind Kind
	msg  string
}

// New returns a classified error. Each call returns a distinct value, so
// sentinels compare by identity with errors.Is.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind reports the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Message is the text safe to show to a shopper.
func (e *Error) Message() string { return e.msg }

type kinder interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of the first classified error in
// err's chain. Unclassified errors get a generic message so that storage
// details never leak to shoppers.
func Message(err error) string {
	var k kinder
	if errors.As(err, &k) && k.Kind() != Internal {
		if m, ok := k.(interface{ Message() string }); ok {
			return m.Message()
		}
		return err.Error()
	}
	return "internal error"
}
