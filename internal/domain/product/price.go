package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolvePrice returns the unit price that applies at now.
//
// A variant override price always wins and is never discounted. Otherwise the
// product discount price applies while now is inside the discount window,
// where a missing bound is open on that side. The base price applies in every
// other case.
func ResolvePrice(p Product, v *Variant, now time.Time) decimal.Decimal {
	if v != nil && v.Price.Valid {
		return v.Price.Decimal
	}
	if DiscountActive(p, now) {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// DiscountActive reports whether the product discount price applies at now.
// Both window bounds are inclusive.
func DiscountActive(p Product, now time.Time) bool {
	if !p.DiscountPrice.Valid {
		return false
	}
	if p.DiscountStart != nil && now.Before(*p.DiscountStart) {
		return false
	}
	if p.DiscountEnd != nil && now.After(*p.DiscountEnd) {
		return false
	}
	return true
}
