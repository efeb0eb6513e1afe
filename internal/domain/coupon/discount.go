package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount of rule over items. The amount is rounded to two
// places and never exceeds the subtotal.
func Apply(rule *Rule, items []Item) (Discount, error) {
	if rule.MinItems > 0 && totalQuantity(items) < rule.MinItems {
		return Discount{}, errors.Wrapf(ErrInvalidCoupon, "needs at least %d items", rule.MinItems)
	}

	subtotal := subtotalOf(items)

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = rule.Value
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rule.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, rule.MaxDiscount)
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Code:        rule.Code,
		Amount:      amount.Round(2),
		Description: rule.Description,
	}, nil
}

func subtotalOf(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func totalQuantity(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func lowestUnitPrice(items []Item) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	lowest := items[0].Price
	for _, it := range items[1:] {
		if it.Price.LessThan(lowest) {
			lowest = it.Price
		}
	}
	return lowest
}
