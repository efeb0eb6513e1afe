package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		rule        Rule
		items       []Item
		wantAmount  string
		wantErr     error
		wantErrText string
	}{
		{
			name:       "percentage of subtotal",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("18")},
			items:      []Item{{Price: d("50"), Quantity: 2}},
			wantAmount: "18",
		},
		{
			name:       "percentage rounds to cents",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("15")},
			items:      []Item{{Price: d("9.99"), Quantity: 3}},
			wantAmount: "4.50",
		},
		{
			name:       "percentage capped by max discount",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: d("20")},
			items:      []Item{{Price: d("100"), Quantity: 1}},
			wantAmount: "20",
		},
		{
			name:       "fixed",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("9")},
			items:      []Item{{Price: d("100"), Quantity: 1}},
			wantAmount: "9",
		},
		{
			name:       "fixed capped at subtotal",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("200")},
			items:      []Item{{Price: d("50"), Quantity: 2}},
			wantAmount: "100",
		},
		{
			name: "free lowest",
			rule: Rule{DiscountType: DiscountFreeLowest},
			items: []Item{
				{Price: d("15"), Quantity: 1},
				{Price: d("5"), Quantity: 2},
				{Price: d("10"), Quantity: 1},
			},
			wantAmount: "5",
		},
		{
			name:       "empty cart",
			rule:       Rule{DiscountType: DiscountPercentage, Value: d("10")},
			wantAmount: "0",
		},
		{
			name:    "min items not met",
			rule:    Rule{DiscountType: DiscountFixed, Value: d("5"), MinItems: 3},
			items:   []Item{{Price: d("10"), Quantity: 2}},
			wantErr: ErrInvalidCoupon,
		},
		{
			name:       "min items counts quantities",
			rule:       Rule{DiscountType: DiscountFixed, Value: d("5"), MinItems: 3},
			items:      []Item{{Price: d("10"), Quantity: 3}},
			wantAmount: "5",
		},
		{
			name:        "unsupported type",
			rule:        Rule{DiscountType: "bogus", Value: d("10")},
			items:       []Item{{Price: d("10"), Quantity: 1}},
			wantErrText: "unsupported discount type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.Code = "C"
			got, err := Apply(&rule, tt.items)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
			default:
				require.NoError(t, err)
				assert.True(t, d(tt.wantAmount).Equal(got.Amount), "want %s, got %s", tt.wantAmount, got.Amount)
				assert.Equal(t, "C", got.Code)
			}
		})
	}
}
