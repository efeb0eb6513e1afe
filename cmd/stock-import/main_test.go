package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/inventory"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/storage/memory"
)

func writeFeed(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	for _, tt := range []struct {
		line    string
		sku     string
		qty     int
		ok      bool
		wantErr bool
	}{
		{line: "MUG,5", sku: "MUG", qty: 5, ok: true},
		{line: "  MUG-RED , -2 ", sku: "MUG-RED", qty: -2, ok: true},
		{line: ""},
		{line: "# header"},
		{line: "MUG", wantErr: true},
		{line: ",3", wantErr: true},
		{line: "MUG,many", wantErr: true},
	} {
		t.Run(tt.line, func(t *testing.T) {
			sku, qty, ok, err := parseRecord(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.sku, sku)
			assert.Equal(t, tt.qty, qty)
		})
	}
}

func catalog() []product.Product {
	return []product.Product{
		{ID: "p1", SKU: "MUG", Price: decimal.NewFromInt(10), Inventory: 3},
		{ID: "p2", SKU: "TEE", Price: decimal.NewFromInt(20), Variants: []product.Variant{
			{ID: "v1", ProductID: "p2", SKU: "TEE-S", Inventory: 1, IsDefault: true},
			{ID: "v2", ProductID: "p2", SKU: "TEE-M", Inventory: 0},
		}},
	}
}

func TestScanFeeds(t *testing.T) {
	dir := t.TempDir()
	a := writeFeed(t, dir, "stock-1.gz", "# sku,qty\nMUG,5\nOTHER-STORE,100\nTEE-M,2\n")
	b := writeFeed(t, dir, "stock-2.gz", "MUG,-1\nTEE-M,3\n\n")

	deltas, err := scanFeeds(context.Background(), []string{a, b}, knownSKUs(catalog()))
	require.NoError(t, err)
	assert.Equal(t, 4, deltas["MUG"])
	assert.Equal(t, 5, deltas["TEE-M"])
	assert.NotContains(t, deltas, "OTHER-STORE")
}

func TestScanFeedsMalformed(t *testing.T) {
	dir := t.TempDir()
	a := writeFeed(t, dir, "stock-1.gz", "MUG;5\n")

	_, err := scanFeeds(context.Background(), []string{a}, knownSKUs(catalog()))
	require.Error(t, err)
}

func TestApplyDeltas(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	products := memory.NewProductRepository(db)
	for _, p := range catalog() {
		require.NoError(t, products.Put(ctx, p))
	}
	adj := inventory.NewAdjuster(products, memory.NewOrderRepository(db), db, nil)

	require.NoError(t, applyDeltas(ctx, adj, map[string]int{
		"MUG":     -5,
		"TEE-M":   4,
		"TEE-S":   0,
		"MISSING": 7,
	}))

	mug, err := products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, mug.Inventory, "stock clamps at zero")

	tee, err := products.GetByID(ctx, "p2")
	require.NoError(t, err)
	m, ok := tee.Variant("v2")
	require.True(t, ok)
	assert.Equal(t, 4, m.Inventory)
	s, ok := tee.Variant("v1")
	require.True(t, ok)
	assert.Equal(t, 1, s.Inventory)
}
