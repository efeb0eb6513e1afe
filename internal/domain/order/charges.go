package order

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Charges is the tax and shipping policy applied at checkout.
type Charges struct {
	// TaxRate is a percentage applied to the discounted subtotal.
	TaxRate decimal.Decimal
	// FlatShipping is charged per order.
	FlatShipping decimal.Decimal
	// FreeShippingOver waives shipping when the subtotal reaches it. Zero
	// disables the waiver.
	FreeShippingOver decimal.Decimal
}

// Compute returns the tax and shipping amounts for a subtotal and discount.
func (c Charges) Compute(subtotal, discount decimal.Decimal) (tax, shipping decimal.Decimal) {
	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax = taxable.Mul(c.TaxRate).Div(hundred).Round(2)

	shipping = c.FlatShipping.Round(2)
	if c.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(c.FreeShippingOver) {
		shipping = decimal.Zero
	}
	return tax, shipping
}
