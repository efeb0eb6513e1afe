package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/seed"
	"github.com/xenking/shop-core/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		catalogFile  string
		shopKey      string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (default: embedded demo catalog)")
	flag.StringVar(&shopKey, "shop-key", "", "shop API key to seed (or SHOP_SEED_SHOP_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if shopKey == "" {
		shopKey = os.Getenv("SHOP_SEED_SHOP_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if shopKey == "" && adminKey == "" {
		slog.Error("at least one API key is required: set --shop-key or --admin-key")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}
	if apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or SHOP_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := []seed.Key{
		{ID: "default-shop", Name: "Default shop key", Raw: shopKey, Scopes: []string{auth.ScopeShop}},
		{ID: "default-admin", Name: "Default admin key", Raw: adminKey, Scopes: []string{auth.ScopeAdmin}},
	}
	if err := run(ctx, databaseURL, catalogFile, []byte(apiKeyPepper), keys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func loadCatalog(path string) (*seed.Catalog, error) {
	if path == "" {
		slog.Info("using embedded catalog")
		return seed.Default()
	}
	slog.Info("reading catalog file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	return seed.Load(data)
}

func run(ctx context.Context, databaseURL, catalogFile string, pepper []byte, keys []seed.Key) error {
	catalog, err := loadCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.NewDB(pool)
	sink := seed.Sink{
		Products: postgres.NewProductRepository(db),
		Coupons:  postgres.NewCouponRepository(db),
		APIKeys:  postgres.NewAPIKeyRepository(db),
	}

	// One transaction so a failed seed leaves the catalog untouched.
	if err := db.InTx(ctx, func(ctx context.Context) error {
		if err := sink.Apply(ctx, catalog); err != nil {
			return err
		}
		return sink.PutKeys(ctx, pepper, keys...)
	}); err != nil {
		return err
	}

	for _, p := range catalog.Products {
		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}
	for _, c := range catalog.Coupons {
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}
	for _, k := range keys {
		if k.Raw != "" {
			slog.Info("upserted API key", slog.String("id", k.ID), slog.Any("scopes", k.Scopes))
		}
	}
	return nil
}
