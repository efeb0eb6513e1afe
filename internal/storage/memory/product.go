package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/shop-core/internal/domain/product"
)

var (
	_ product.Repository        = (*ProductRepository)(nil)
	_ product.VariantRepository = (*ProductRepository)(nil)
	_ product.StockRepository   = (*ProductRepository)(nil)
)

// ProductRepository serves the catalog, variant lists and stock.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository over db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(ctx context.Context, p product.Product) error {
	return r.db.run(ctx, func() error {
		r.db.products[p.ID] = cloneProduct(p)
		return nil
	})
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.db.run(ctx, func() error {
		if _, ok := r.db.products[id]; !ok {
			return product.ErrNotFound
		}
		delete(r.db.products, id)
		return nil
	})
}

// List returns all products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	var out []product.Product
	err := r.db.run(ctx, func() error {
		for _, p := range r.db.products {
			out = append(out, cloneProduct(p))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, err
}

// GetByID returns product.ErrNotFound for unknown ids.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var out product.Product
	err := r.db.run(ctx, func() error {
		p, ok := r.db.products[id]
		if !ok {
			return product.ErrNotFound
		}
		out = cloneProduct(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDs returns the products that exist, skipping unknown ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	err := r.db.run(ctx, func() error {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if p, ok := r.db.products[id]; ok {
				out = append(out, cloneProduct(p))
			}
		}
		return nil
	})
	return out, err
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
	return r.db.run(ctx, func() error {
		p, ok := r.db.products[productID]
		if !ok {
			return product.ErrNotFound
		}
		if p.Version != expectedVersion {
			return product.ErrVersionConflict
		}
		p.Variants = cloneVariants(variants)
		p.Version++
		r.db.products[productID] = p
		return nil
	})
}

// GetForUpdate implements product.StockRepository. Transactions are
// serialized, so a read inside one is already exclusive.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*product.Product, error) {
	return r.GetByID(ctx, id)
}

// UpdateStock writes inventory counts only. The version moves so that a
// variant edit loaded before the change cannot overwrite it.
func (r *ProductRepository) UpdateStock(ctx context.Context, id string, inventory int, variants []product.Variant) error {
	return r.db.run(ctx, func() error {
		p, ok := r.db.products[id]
		if !ok {
			return product.ErrNotFound
		}
		stock := make(map[string]int, len(variants))
		for _, v := range variants {
			stock[v.ID] = v.Inventory
		}
		p.Variants = cloneVariants(p.Variants)
		for i := range p.Variants {
			if n, ok := stock[p.Variants[i].ID]; ok {
				p.Variants[i].Inventory = n
			}
		}
		p.Inventory = inventory
		p.Version++
		r.db.products[id] = p
		return nil
	})
}

// FindBySKU implements product.StockRepository.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (productID, variantID string, err error) {
	err = r.db.run(ctx, func() error {
		for _, p := range r.db.products {
			if p.SKU == sku {
				productID = p.ID
				return nil
			}
			for _, v := range p.Variants {
				if v.SKU == sku {
					productID, variantID = p.ID, v.ID
					return nil
				}
			}
		}
		return product.ErrNotFound
	})
	return productID, variantID, err
}
