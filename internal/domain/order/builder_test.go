package order

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/product"
)

type mockProductRepo struct {
	products map[string]product.Product
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

var buildNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestBuilder() (*Builder, *mockProductRepo, *mockOrderRepo) {
	products := &mockProductRepo{products: map[string]product.Product{
		"book": {ID: "book", Name: "Book", SKU: "BOOK", Price: decimal.NewFromInt(50), Inventory: 10},
		"tee": {
			ID: "tee", Name: "T-Shirt", SKU: "TEE", Price: decimal.NewFromInt(20),
			Variants: []product.Variant{
				{ID: "tee-xl", ProductID: "tee", Name: "XL", SKU: "TEE-XL", Price: decimal.NewNullDecimal(decimal.RequireFromString("24.99")), IsDefault: true},
			},
		},
	}}
	orders := newMockOrderRepo()
	b := NewBuilder(products, orders, "inr", nil)
	b.now = func() time.Time { return buildNow }
	return b, products, orders
}

func line(productID, variantID string, qty int) cart.Line {
	return cart.Line{ID: productID + variantID, OwnerID: "u1", ProductID: productID, VariantID: variantID, Quantity: qty}
}

func TestBuilder_Totals(t *testing.T) {
	b, _, orders := newTestBuilder()

	o, err := b.Build(context.Background(), BuildRequest{
		OwnerID:         "u1",
		Lines:           []cart.Line{line("book", "", 2)},
		TaxAmount:       decimal.NewFromInt(5),
		ShippingAmount:  decimal.NewFromInt(10),
		ShippingAddress: account.Address{ID: "a1", FullName: "Jo", City: "Pune"},
	})
	require.NoError(t, err)

	assert.Equal(t, "100.00", o.SubTotal.StringFixed(2))
	assert.Equal(t, "115.00", o.GrandTotal.StringFixed(2))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "INR", o.Currency)
	assert.Equal(t, "Pune", o.ShippingAddress.City)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "50.00", o.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "100.00", o.Items[0].LineTotal.StringFixed(2))

	_, err = orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
}

func TestBuilder_VariantAndDiscount(t *testing.T) {
	b, _, _ := newTestBuilder()

	o, err := b.Build(context.Background(), BuildRequest{
		OwnerID:        "u1",
		Lines:          []cart.Line{line("tee", "tee-xl", 3), line("book", "", 1)},
		DiscountAmount: decimal.RequireFromString("4.97"),
	})
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "TEE-XL", o.Items[0].SKU)
	assert.Equal(t, "tee-xl", o.Items[0].VariantID)
	assert.Equal(t, "74.97", o.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, "124.97", o.SubTotal.StringFixed(2))
	assert.Equal(t, "120.00", o.GrandTotal.StringFixed(2))
}

func TestBuilder_AdjustUsesBuiltPrices(t *testing.T) {
	b, products, _ := newTestBuilder()
	// The sale ended just before the order is built.
	ended := buildNow.Add(-time.Minute)
	book := products.products["book"]
	book.DiscountPrice = decimal.NewNullDecimal(decimal.NewFromInt(40))
	book.DiscountEnd = &ended
	products.products["book"] = book

	charges := Charges{TaxRate: decimal.NewFromInt(10), FlatShipping: decimal.NewFromInt(5)}
	var seen decimal.Decimal
	o, err := b.Build(context.Background(), BuildRequest{
		OwnerID:   "u1",
		Lines:     []cart.Line{line("book", "", 2)},
		TaxAmount: decimal.NewFromInt(999),
		Adjust: func(_ context.Context, items []Item, subTotal decimal.Decimal) (Adjustment, error) {
			require.Len(t, items, 1)
			seen = subTotal
			discount := decimal.NewFromInt(10)
			tax, shipping := charges.Compute(subTotal, discount)
			return Adjustment{Tax: tax, Shipping: shipping, Discount: discount, CouponCode: "TEN"}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "100.00", seen.StringFixed(2))
	assert.Equal(t, "100.00", o.SubTotal.StringFixed(2))
	assert.Equal(t, "9.00", o.TaxAmount.StringFixed(2))
	assert.Equal(t, "5.00", o.ShippingAmount.StringFixed(2))
	assert.Equal(t, "10.00", o.DiscountAmount.StringFixed(2))
	assert.Equal(t, "104.00", o.GrandTotal.StringFixed(2))
	assert.Equal(t, "TEN", o.CouponCode)
}

func TestBuilder_AdjustErrors(t *testing.T) {
	b, _, orders := newTestBuilder()
	boom := errors.New("coupon exhausted")

	_, err := b.Build(context.Background(), BuildRequest{
		OwnerID: "u1",
		Lines:   []cart.Line{line("book", "", 1)},
		Adjust: func(context.Context, []Item, decimal.Decimal) (Adjustment, error) {
			return Adjustment{}, boom
		},
	})
	require.ErrorIs(t, err, boom)

	_, err = b.Build(context.Background(), BuildRequest{
		OwnerID: "u1",
		Lines:   []cart.Line{line("book", "", 1)},
		Adjust: func(context.Context, []Item, decimal.Decimal) (Adjustment, error) {
			return Adjustment{Shipping: decimal.NewFromInt(-1)}, nil
		},
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, orders.orders)
}

func TestBuilder_GrandTotalNeverNegative(t *testing.T) {
	b, _, _ := newTestBuilder()

	o, err := b.Build(context.Background(), BuildRequest{
		OwnerID:        "u1",
		Lines:          []cart.Line{line("book", "", 1)},
		DiscountAmount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.True(t, o.GrandTotal.IsZero())
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      BuildRequest
		wantErr  error
		wantKind apperr.Kind
	}{
		{
			name:     "empty cart",
			req:      BuildRequest{OwnerID: "u1"},
			wantErr:  ErrEmptyCart,
			wantKind: apperr.EmptyCart,
		},
		{
			name:     "vanished product",
			req:      BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("gone", "", 1)}},
			wantErr:  ErrItemUnavailable,
			wantKind: apperr.NotFound,
		},
		{
			name:     "vanished variant",
			req:      BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("tee", "tee-s", 1)}},
			wantErr:  ErrItemUnavailable,
			wantKind: apperr.NotFound,
		},
		{
			name:     "negative tax",
			req:      BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("book", "", 1)}, TaxAmount: decimal.NewFromInt(-1)},
			wantErr:  ErrInvalidAmount,
			wantKind: apperr.InvalidArgument,
		},
		{
			name:     "zero quantity",
			req:      BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("book", "", 0)}},
			wantErr:  cart.ErrInvalidQuantity,
			wantKind: apperr.InvalidQuantity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, orders := newTestBuilder()
			_, err := b.Build(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Empty(t, orders.orders)
		})
	}
}

func TestBuilder_OrderIsImmutableAfterCatalogChange(t *testing.T) {
	b, products, orders := newTestBuilder()
	ctx := context.Background()

	o, err := b.Build(ctx, BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("tee", "tee-xl", 1)}})
	require.NoError(t, err)

	tee := products.products["tee"]
	tee.Name = "Renamed"
	tee.Price = decimal.NewFromInt(999)
	tee.Variants[0].Price = decimal.NewNullDecimal(decimal.NewFromInt(999))
	products.products["tee"] = tee

	stored, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	item := stored.Items[0]
	assert.Equal(t, "24.99", item.UnitPrice.StringFixed(2))
	assert.Equal(t, "T-Shirt (XL)", item.Name)

	var snap struct {
		Product product.Product  `json:"product"`
		Variant *product.Variant `json:"variant"`
	}
	require.NoError(t, json.Unmarshal(item.Snapshot, &snap))
	assert.Equal(t, "T-Shirt", snap.Product.Name)
	assert.Equal(t, "20", snap.Product.Price.String())
	require.NotNil(t, snap.Variant)
	assert.Equal(t, "24.99", snap.Variant.Price.Decimal.String())
}

func TestBuilder_RetriesOrderNumberCollisions(t *testing.T) {
	b, _, orders := newTestBuilder()
	n := 0
	b.newNumber = func(time.Time) string {
		n++
		return fmt.Sprintf("ORD-%d", n)
	}

	orders.taken = 2
	o, err := b.Build(context.Background(), BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("book", "", 1)}})
	require.NoError(t, err)
	assert.Equal(t, "ORD-3", o.Number)
	assert.Equal(t, []string{"ORD-1", "ORD-2", "ORD-3"}, orders.creates)

	orders.taken = maxNumberAttempts
	_, err = b.Build(context.Background(), BuildRequest{OwnerID: "u1", Lines: []cart.Line{line("book", "", 1)}})
	require.ErrorIs(t, err, ErrOrderNumberExhausted)
	assert.Equal(t, apperr.OrderNumberExhausted, apperr.KindOf(err))
}

func TestNewNumber(t *testing.T) {
	re := regexp.MustCompile(`^ORD-20250615-[0-9A-HJKMNP-TV-Z]{10}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		n := NewNumber(buildNow)
		require.Regexp(t, re, n)
		_, dup := seen[n]
		require.False(t, dup, "duplicate number %s", n)
		seen[n] = struct{}{}
	}
}
