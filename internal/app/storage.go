package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/domain/tx"
	"github.com/xenking/shop-core/internal/seed"
	"github.com/xenking/shop-core/internal/storage/memory"
	"github.com/xenking/shop-core/internal/storage/postgres"
	"github.com/xenking/shop-core/pkg/health"
)

type productStore interface {
	product.Repository
	product.VariantRepository
	product.StockRepository
}

// Storage is the repository set of one backend.
type Storage struct {
	Products productStore
	Carts    cart.Repository
	Orders   order.Repository
	Payments payment.Repository
	Profiles account.Repository
	Coupons  coupon.Repository
	APIKeys  auth.Repository
	Tx       tx.Transactor

	// Pinger is nil for backends without a connection to check.
	Pinger health.Pinger
	Close  func()
}

// OpenStorage connects the configured backend. The PostgreSQL schema is
// migrated; the memory backend is seeded with the demo catalog and the
// bootstrap keys.
func OpenStorage(ctx context.Context, cfg *Config, lg *zap.Logger) (*Storage, error) {
	switch cfg.Storage {
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		db := postgres.NewDB(pool)
		return &Storage{
			Products: postgres.NewProductRepository(db),
			Carts:    postgres.NewCartRepository(db),
			Orders:   postgres.NewOrderRepository(db),
			Payments: postgres.NewPaymentRepository(db),
			Profiles: postgres.NewProfileRepository(db),
			Coupons:  postgres.NewCouponRepository(db),
			APIKeys:  postgres.NewAPIKeyRepository(db),
			Tx:       db,
			Pinger:   pool,
			Close:    pool.Close,
		}, nil

	case StorageMemory:
		db := memory.New()
		s := &Storage{
			Products: memory.NewProductRepository(db),
			Carts:    memory.NewCartRepository(db),
			Orders:   memory.NewOrderRepository(db),
			Payments: memory.NewPaymentRepository(db),
			Profiles: memory.NewProfileRepository(db),
			Coupons:  memory.NewCouponRepository(db),
			APIKeys:  memory.NewAPIKeyRepository(db),
			Tx:       db,
			Close:    func() {},
		}
		catalog, err := seed.Default()
		if err != nil {
			return nil, errors.Wrap(err, "load catalog")
		}
		sink := seed.Sink{
			Products: memory.NewProductRepository(db),
			Coupons:  memory.NewCouponRepository(db),
			APIKeys:  memory.NewAPIKeyRepository(db),
		}
		if err := sink.Apply(ctx, catalog); err != nil {
			return nil, errors.Wrap(err, "seed catalog")
		}
		if err := sink.PutKeys(ctx, []byte(cfg.APIKeyPepper),
			seed.Key{ID: "bootstrap-shop", Name: "bootstrap shop", Raw: cfg.Bootstrap.ShopKey, Scopes: []string{auth.ScopeShop}},
			seed.Key{ID: "bootstrap-admin", Name: "bootstrap admin", Raw: cfg.Bootstrap.AdminKey, Scopes: []string{auth.ScopeAdmin}},
		); err != nil {
			return nil, errors.Wrap(err, "seed api keys")
		}
		lg.Warn("Using in-memory storage, data is lost on restart",
			zap.Int("products", len(catalog.Products)),
			zap.Int("coupons", len(catalog.Coupons)),
		)
		return s, nil

	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}
