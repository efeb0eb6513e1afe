// Package account keeps the saved addresses and payment methods of a shopper.
package account

import (
	"context"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

var (
	// ErrAddressNotFound is returned when an address id is not in the profile.
	ErrAddressNotFound = apperr.New(apperr.NotFound, "address not found")
	// ErrPaymentMethodNotFound is returned when a payment method id is not in
	// the profile.
	ErrPaymentMethodNotFound = apperr.New(apperr.NotFound, "payment method not found")
	// ErrVersionConflict is returned by Repository.Save when the profile was
	// changed since it was loaded.
	ErrVersionConflict = apperr.New(apperr.Conflict, "profile was modified concurrently")
	// ErrInvalidAddress is returned for addresses missing required fields.
	ErrInvalidAddress = apperr.New(apperr.InvalidArgument, "address requires full name, line 1, city, postal code and country")
	// ErrInvalidPaymentMethod is returned for malformed payment methods.
	ErrInvalidPaymentMethod = apperr.New(apperr.InvalidArgument, "invalid payment method")
)

// Address is a saved shipping or billing address.
type Address struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	IsDefault  bool   `json:"is_default"`
}

func (a Address) Key() string   { return a.ID }
func (a Address) Default() bool { return a.IsDefault }

func (a Address) WithDefault(d bool) Address {
	a.IsDefault = d
	return a
}

// MethodKind is the payment instrument family.
type MethodKind string

const (
	MethodCard       MethodKind = "card"
	MethodUPI        MethodKind = "upi"
	MethodWallet     MethodKind = "wallet"
	MethodNetbanking MethodKind = "netbanking"
)

// Valid reports whether k is a known kind.
func (k MethodKind) Valid() bool {
	switch k {
	case MethodCard, MethodUPI, MethodWallet, MethodNetbanking:
		return true
	default:
		return false
	}
}

// PaymentMethod is a saved payment instrument. Only the gateway token is kept,
// never card numbers.
type PaymentMethod struct {
	ID           string     `json:"id"`
	Kind         MethodKind `json:"kind"`
	Label        string     `json:"label"`
	Last4        string     `json:"last4,omitempty"`
	ExpMonth     int        `json:"exp_month,omitempty"`
	ExpYear      int        `json:"exp_year,omitempty"`
	GatewayToken string     `json:"gateway_token,omitempty"`
	IsDefault    bool       `json:"is_default"`
}

func (m PaymentMethod) Key() string   { return m.ID }
func (m PaymentMethod) Default() bool { return m.IsDefault }

func (m PaymentMethod) WithDefault(d bool) PaymentMethod {
	m.IsDefault = d
	return m
}

// Profile is the per-owner document holding both collections.
type Profile struct {
	OwnerID        string
	Addresses      []Address
	PaymentMethods []PaymentMethod
	Version        int64
}

// Repository stores profiles under optimistic concurrency control.
type Repository interface {
	// Load returns the profile of owner. A missing profile is returned empty
	// with version 0.
	Load(ctx context.Context, ownerID string) (*Profile, error)
	// Save stores p if the stored version still equals expectedVersion and
	// returns ErrVersionConflict otherwise.
	Save(ctx context.Context, p *Profile, expectedVersion int64) error
}
