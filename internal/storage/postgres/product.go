package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/product"
)

const (
	productColumns = `id, name, sku, category, price, discount_price, discount_start, discount_end,
		inventory, variants, version, updated_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductForUpdateSQL = getProductByIDSQL + ` FOR UPDATE`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	upsertProductSQL = `INSERT INTO products (id, name, sku, category, price, discount_price,
		discount_start, discount_end, inventory, variants, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, sku = EXCLUDED.sku, category = EXCLUDED.category,
			price = EXCLUDED.price, discount_price = EXCLUDED.discount_price,
			discount_start = EXCLUDED.discount_start, discount_end = EXCLUDED.discount_end,
			inventory = EXCLUDED.inventory, variants = EXCLUDED.variants,
			version = products.version + 1, updated_at = EXCLUDED.updated_at`

	saveVariantsSQL = `UPDATE products SET variants = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3`

	updateStockSQL = `UPDATE products SET inventory = $2, variants = $3, version = version + 1, updated_at = now()
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	findBySKUSQL = `SELECT id, '' FROM products WHERE sku = $1
		UNION ALL
		SELECT p.id, v->>'id' FROM products p, jsonb_array_elements(p.variants) v WHERE v->>'sku' = $1
		LIMIT 1`
)

var (
	_ product.Repository        = (*ProductRepository)(nil)
	_ product.VariantRepository = (*ProductRepository)(nil)
	_ product.StockRepository   = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog, variant and stock repositories.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository over db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(ctx context.Context, p product.Product) error {
	variants := p.Variants
	if variants == nil {
		variants = []product.Variant{}
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.db.q(ctx).Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.SKU, p.Category, p.Price, p.DiscountPrice,
		p.DiscountStart, p.DiscountEnd, p.Inventory, variants, updated,
	)
	if err != nil {
		return errors.Wrapf(err, "put product %q", p.ID)
	}
	return nil
}

// List returns all products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) get(ctx context.Context, sql, id string) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.get(ctx, getProductByIDSQL, id)
}

// GetForUpdate locks the product row until the transaction ends.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*product.Product, error) {
	return r.get(ctx, getProductForUpdateSQL, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// LoadVariants implements product.VariantRepository.
func (r *ProductRepository) LoadVariants(ctx context.Context, productID string) ([]product.Variant, int64, error) {
	p, err := r.GetByID(ctx, productID)
	if err != nil {
		return nil, 0, err
	}
	return p.Variants, p.Version, nil
}

// SaveVariants implements product.VariantRepository.
func (r *ProductRepository) SaveVariants(ctx context.Context, productID string, variants []product.Variant, expectedVersion int64) error {
	if variants == nil {
		variants = []product.Variant{}
	}
	tag, err := r.db.q(ctx).Exec(ctx, saveVariantsSQL, productID, variants, expectedVersion)
	if err != nil {
		return errors.Wrapf(err, "save variants of %q", productID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOr(ctx, productID, product.ErrVersionConflict)
}

// UpdateStock implements product.StockRepository. Callers hold the row lock
// from GetForUpdate, so the variant list is written back whole.
func (r *ProductRepository) UpdateStock(ctx context.Context, id string, inventory int, variants []product.Variant) error {
	if variants == nil {
		variants = []product.Variant{}
	}
	tag, err := r.db.q(ctx).Exec(ctx, updateStockSQL, id, inventory, variants)
	if err != nil {
		return errors.Wrapf(err, "update stock of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// FindBySKU implements product.StockRepository.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (productID, variantID string, err error) {
	err = r.db.q(ctx).QueryRow(ctx, findBySKUSQL, sku).Scan(&productID, &variantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", product.ErrNotFound
	}
	if err != nil {
		return "", "", errors.Wrapf(err, "find sku %q", sku)
	}
	return productID, variantID, nil
}

// missingOr tells a missing product apart from a failed condition.
func (r *ProductRepository) missingOr(ctx context.Context, id string, conflict error) error {
	var exists bool
	if err := r.db.q(ctx).QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check product %q", id)
	}
	if !exists {
		return product.ErrNotFound
	}
	return conflict
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Category, &p.Price, &p.DiscountPrice,
		&p.DiscountStart, &p.DiscountEnd, &p.Inventory, &p.Variants, &p.Version, &p.UpdatedAt,
	)
	return p, err
}
