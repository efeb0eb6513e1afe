// Command stock-import applies warehouse delivery feeds to product and
// variant stock.
//
// Feeds are gzip files with one "SKU,QUANTITY" record per line. Negative
// quantities write stock off. Feeds are shared between stores, so most SKUs
// in them are unknown here; a bloom filter of the catalog SKUs drops those
// before any database lookup.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-core/internal/domain/inventory"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "feeds", "data/stock-*.gz", "glob of gzip stock feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "aggregate feeds without writing stock")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files match %q", pattern)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	db := postgres.NewDB(pool)
	products := postgres.NewProductRepository(db)

	catalog, err := products.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	known := knownSKUs(catalog)
	slog.Info("catalog loaded", slog.Int("products", len(catalog)))

	slog.Info("scanning feeds", slog.Int("files", len(files)))
	deltas, err := scanFeeds(ctx, files, known)
	if err != nil {
		return errors.Wrap(err, "scan feeds")
	}
	slog.Info("feeds aggregated", slog.Int("skus", len(deltas)))

	if dryRun {
		for _, sku := range sortedKeys(deltas) {
			slog.Info("would restock", slog.String("sku", sku), slog.Int("quantity", deltas[sku]))
		}
		return nil
	}

	adjuster := inventory.NewAdjuster(products, postgres.NewOrderRepository(db), db, zap.NewNop())
	return applyDeltas(ctx, adjuster, deltas)
}

// knownSKUs builds a filter over every product and variant SKU.
func knownSKUs(catalog []product.Product) *bloom.BloomFilter {
	n := uint(len(catalog))
	for _, p := range catalog {
		n += uint(len(p.Variants))
	}
	filter := bloom.NewWithEstimates(max(n, 1), bloomFPR)
	for _, p := range catalog {
		filter.AddString(p.SKU)
		for _, v := range p.Variants {
			filter.AddString(v.SKU)
		}
	}
	return filter
}

// scanFeeds parses files concurrently and sums quantities per SKU.
func scanFeeds(ctx context.Context, files []string, known *bloom.BloomFilter) (map[string]int, error) {
	results := make([]map[string]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			deltas := make(map[string]int)
			var lines, kept uint64
			err := streamGzFile(ctx, f, func(line string) error {
				lines++
				if lines%progressEvery == 0 {
					slog.Info("scan progress", slog.String("file", f), slog.Uint64("lines", lines))
				}
				sku, qty, ok, err := parseRecord(line)
				if err != nil {
					return errors.Wrapf(err, "line %d", lines)
				}
				if !ok || !known.TestString(sku) {
					return nil
				}
				kept++
				deltas[sku] += qty
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}
			slog.Info("scan complete",
				slog.String("file", f),
				slog.Uint64("lines", lines),
				slog.Uint64("kept", kept),
			)
			results[i] = deltas
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]int)
	for _, r := range results {
		for sku, qty := range r {
			merged[sku] += qty
		}
	}
	return merged, nil
}

// parseRecord reads one "SKU,QUANTITY" line. Blank lines and lines starting
// with '#' are skipped with ok=false.
func parseRecord(line string) (sku string, qty int, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", 0, false, nil
	}
	rawSKU, rawQty, found := strings.Cut(line, ",")
	if !found {
		return "", 0, false, errors.Errorf("malformed record %q", line)
	}
	sku = strings.TrimSpace(rawSKU)
	if sku == "" {
		return "", 0, false, errors.Errorf("empty sku in %q", line)
	}
	qty, err = strconv.Atoi(strings.TrimSpace(rawQty))
	if err != nil {
		return "", 0, false, errors.Wrapf(err, "parse quantity in %q", line)
	}
	return sku, qty, true, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

type restocker interface {
	Restock(ctx context.Context, sku string, quantity int) error
}

// applyDeltas restocks each SKU in its own transaction. Bloom false positives
// surface as unknown SKUs and are skipped.
func applyDeltas(ctx context.Context, r restocker, deltas map[string]int) error {
	var applied, skipped int
	for _, sku := range sortedKeys(deltas) {
		qty := deltas[sku]
		if qty == 0 {
			skipped++
			continue
		}
		if err := r.Restock(ctx, sku, qty); err != nil {
			if errors.Is(err, product.ErrNotFound) || errors.Is(err, product.ErrVariantNotFound) {
				slog.Warn("unknown sku skipped", slog.String("sku", sku))
				skipped++
				continue
			}
			return errors.Wrapf(err, "restock %s", sku)
		}
		applied++
	}
	slog.Info("stock written", slog.Int("applied", applied), slog.Int("skipped", skipped))
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
