// Package coupon turns coupon codes into order discounts.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeLowest makes one unit of the cheapest item free.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrInvalidCoupon is returned for unknown codes and carts that do not
	// meet the minimum item count.
	ErrInvalidCoupon = apperr.New(apperr.InvalidArgument, "invalid coupon code")
	// ErrCouponExpired is returned outside the validity window.
	ErrCouponExpired = apperr.New(apperr.InvalidArgument, "coupon expired")
	// ErrCouponUsageLimitReached is returned once a coupon ran out of uses.
	ErrCouponUsageLimitReached = apperr.New(apperr.Conflict, "coupon usage limit reached")
)

// Rule is a stored coupon.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinItems     int
	Description  string
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	MaxUses      int
	Uses         int
	// MaxDiscount caps the discount when positive.
	MaxDiscount decimal.Decimal
}

// Discount is the result of applying a rule to a cart.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Item is a priced line considered for discounting.
type Item struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon for unknown codes.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// IncrementUses records one redemption. Implementations must refuse to go
	// past MaxUses and return ErrCouponUsageLimitReached instead.
	IncrementUses(ctx context.Context, code string) error
}

// NormalizeCode canonicalizes user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
