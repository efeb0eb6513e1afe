// Package memory is an in-process storage backend with the same uniqueness,
// versioning and transaction semantics as the PostgreSQL backend. It serves
// tests and local development.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/domain/tx"
)

var _ tx.Transactor = (*DB)(nil)

type txKey struct{}

// DB holds all tables. Transactions are fully serialized and roll back by
// restoring a snapshot taken when they began.
type DB struct {
	mu sync.Mutex

	products map[string]product.Product
	lines    map[string]cart.Line
	orders   map[string]order.Order
	payments []payment.Payment
	profiles map[string]account.Profile
	coupons  map[string]coupon.Rule
	apiKeys  map[string]auth.APIKeyInfo
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		products: map[string]product.Product{},
		lines:    map[string]cart.Line{},
		orders:   map[string]order.Order{},
		profiles: map[string]account.Profile{},
		coupons:  map[string]coupon.Rule{},
		apiKeys:  map[string]auth.APIKeyInfo{},
	}
}

type snapshot struct {
	products map[string]product.Product
	lines    map[string]cart.Line
	orders   map[string]order.Order
	payments []payment.Payment
	profiles map[string]account.Profile
	coupons  map[string]coupon.Rule
}

// Stored values are never mutated in place, so shallow copies of the tables
// are enough to restore them.
func (db *DB) snapshot() snapshot {
	return snapshot{
		products: maps.Clone(db.products),
		lines:    maps.Clone(db.lines),
		orders:   maps.Clone(db.orders),
		payments: slices.Clone(db.payments),
		profiles: maps.Clone(db.profiles),
		coupons:  maps.Clone(db.coupons),
	}
}

func (db *DB) restore(s snapshot) {
	db.products = s.products
	db.lines = s.lines
	db.orders = s.orders
	db.payments = s.payments
	db.profiles = s.profiles
	db.coupons = s.coupons
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// InTx implements tx.Transactor. Nested calls join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// run executes a single statement, inside the caller's transaction if any.
func (db *DB) run(ctx context.Context, fn func() error) error {
	if db.inTx(ctx) {
		return fn()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

func cloneProduct(p product.Product) product.Product {
	p.Variants = cloneVariants(p.Variants)
	return p
}

func cloneVariants(vs []product.Variant) []product.Variant {
	if vs == nil {
		return nil
	}
	out := make([]product.Variant, len(vs))
	for i, v := range vs {
		v.Attributes = maps.Clone(v.Attributes)
		out[i] = v
	}
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneProfile(p account.Profile) account.Profile {
	p.Addresses = slices.Clone(p.Addresses)
	p.PaymentMethods = slices.Clone(p.PaymentMethods)
	return p
}
