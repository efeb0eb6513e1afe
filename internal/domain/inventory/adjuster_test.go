package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/product"
)

type mockStockRepo struct {
	products map[string]product.Product
	locked   []string
	updates  int
	failOn   string
}

func (m *mockStockRepo) GetForUpdate(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	m.locked = append(m.locked, id)
	p.Variants = append([]product.Variant(nil), p.Variants...)
	return &p, nil
}

func (m *mockStockRepo) UpdateStock(_ context.Context, id string, inventory int, variants []product.Variant) error {
	if id == m.failOn {
		return errors.New("disk full")
	}
	p := m.products[id]
	p.Inventory = inventory
	p.Variants = variants
	m.products[id] = p
	m.updates++
	return nil
}

func (m *mockStockRepo) FindBySKU(_ context.Context, sku string) (string, string, error) {
	for _, p := range m.products {
		if p.SKU == sku {
			return p.ID, "", nil
		}
		for _, v := range p.Variants {
			if v.SKU == sku {
				return p.ID, v.ID, nil
			}
		}
	}
	return "", "", product.ErrNotFound
}

type flagRecorder struct {
	order.Repository
	flagged map[string]string
}

func (f *flagRecorder) FlagForReconciliation(_ context.Context, id, notes string, _ time.Time) error {
	if f.flagged == nil {
		f.flagged = map[string]string{}
	}
	f.flagged[id] += notes
	return nil
}

func newStock() *mockStockRepo {
	return &mockStockRepo{products: map[string]product.Product{
		"book": {ID: "book", SKU: "BOOK", Inventory: 5},
		"tee": {ID: "tee", SKU: "TEE", Inventory: 100, Variants: []product.Variant{
			{ID: "tee-s", SKU: "TEE-S", Inventory: 3, IsDefault: true},
			{ID: "tee-xl", SKU: "TEE-XL", Inventory: 1},
		}},
	}}
}

func TestAdjuster_ApplyOrder(t *testing.T) {
	stock := newStock()
	flags := &flagRecorder{}
	a := NewAdjuster(stock, flags, nil, nil)

	o := &order.Order{ID: "o1", Items: []order.Item{
		{ProductID: "tee", VariantID: "tee-s", SKU: "TEE-S", Quantity: 2},
		{ProductID: "book", SKU: "BOOK", Quantity: 2},
		{ProductID: "tee", SKU: "TEE", Quantity: 10},
	}}

	report, err := a.ApplyOrder(context.Background(), o)
	require.NoError(t, err)
	assert.False(t, report.Flagged())
	require.NoError(t, report.Err())

	assert.Equal(t, 3, stock.products["book"].Inventory)
	assert.Equal(t, 90, stock.products["tee"].Inventory)
	assert.Equal(t, 1, stock.products["tee"].Variants[0].Inventory)
	assert.Equal(t, 1, stock.products["tee"].Variants[1].Inventory)
	assert.Equal(t, []string{"book", "tee"}, stock.locked, "products are locked in id order")
	assert.Equal(t, 2, stock.updates, "one write per product")
	assert.Empty(t, flags.flagged)
}

func TestAdjuster_ShortagesClampAndFlag(t *testing.T) {
	stock := newStock()
	flags := &flagRecorder{}
	a := NewAdjuster(stock, flags, nil, nil)

	o := &order.Order{ID: "o1", Items: []order.Item{
		{ProductID: "tee", VariantID: "tee-xl", SKU: "TEE-XL", Quantity: 4},
		{ProductID: "book", SKU: "BOOK", Quantity: 1},
		{ProductID: "gone", SKU: "GONE", Quantity: 1},
		{ProductID: "tee", VariantID: "tee-m", SKU: "TEE-M", Quantity: 1},
	}}

	report, err := a.ApplyOrder(context.Background(), o)
	require.NoError(t, err, "shortages never fail a paid order")
	require.True(t, report.Flagged())
	require.Len(t, report.Shortages, 3)

	assert.Equal(t, 0, stock.products["tee"].Variants[1].Inventory, "clamped at zero")
	assert.Equal(t, 4, stock.products["book"].Inventory)

	byProduct := map[string]Shortage{}
	for _, s := range report.Shortages {
		byProduct[s.SKU] = s
	}
	assert.Equal(t, 1, byProduct["TEE-XL"].Available)
	assert.True(t, byProduct["GONE"].Missing)
	assert.True(t, byProduct["TEE-M"].Missing)

	require.Contains(t, flags.flagged, "o1")
	assert.Contains(t, flags.flagged["o1"], "TEE-XL: 4 requested, 1 available")

	err = report.Err()
	require.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, apperr.InsufficientInventory, apperr.KindOf(err))
}

func TestAdjuster_StorageErrorIsReturned(t *testing.T) {
	stock := newStock()
	stock.failOn = "book"
	a := NewAdjuster(stock, &flagRecorder{}, nil, nil)

	_, err := a.ApplyOrder(context.Background(), &order.Order{ID: "o1", Items: []order.Item{
		{ProductID: "book", SKU: "BOOK", Quantity: 1},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAdjuster_Restock(t *testing.T) {
	stock := newStock()
	a := NewAdjuster(stock, &flagRecorder{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, a.Restock(ctx, "BOOK", 7))
	assert.Equal(t, 12, stock.products["book"].Inventory)

	require.NoError(t, a.Restock(ctx, "TEE-XL", 2))
	assert.Equal(t, 3, stock.products["tee"].Variants[1].Inventory)

	require.NoError(t, a.Restock(ctx, "TEE-S", -10))
	assert.Equal(t, 0, stock.products["tee"].Variants[0].Inventory)

	require.ErrorIs(t, a.Restock(ctx, "BOOK", 0), ErrInvalidRestock)
	require.ErrorIs(t, a.Restock(ctx, "NOPE", 1), product.ErrNotFound)
}
