package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.NotFound, "product not found")
	// ErrVariantNotFound is returned when a variant does not exist or belongs
	// to another product.
	ErrVariantNotFound = apperr.New(apperr.NotFound, "variant not found")
	// ErrVersionConflict is returned by VariantRepository.SaveVariants when the
	// stored variant list changed since it was loaded.
	ErrVersionConflict = apperr.New(apperr.Conflict, "product was modified concurrently")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	SKU           string              `json:"sku"`
	Category      string              `json:"category"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	DiscountStart *time.Time          `json:"discount_start,omitempty"`
	DiscountEnd   *time.Time          `json:"discount_end,omitempty"`
	Inventory     int                 `json:"inventory"`
	Variants      []Variant           `json:"variants,omitempty"`
	Version       int64               `json:"-"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Variant is a purchasable option of a product with its own SKU and stock.
type Variant struct {
	ID         string              `json:"id"`
	ProductID  string              `json:"product_id"`
	Name       string              `json:"name"`
	SKU        string              `json:"sku"`
	Price      decimal.NullDecimal `json:"price"`
	Inventory  int                 `json:"inventory"`
	IsDefault  bool                `json:"is_default"`
	Attributes map[string]string   `json:"attributes,omitempty"`
}

// Key implements defaultset.Item.
func (v Variant) Key() string { return v.ID }

// Default implements defaultset.Item.
func (v Variant) Default() bool { return v.IsDefault }

// WithDefault implements defaultset.Item.
func (v Variant) WithDefault(d bool) Variant {
	v.IsDefault = d
	return v
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// VariantRepository loads and stores the denormalized variant list of a
// product under optimistic concurrency control.
type VariantRepository interface {
	// LoadVariants returns the variants and the current product version.
	LoadVariants(ctx context.Context, productID string) ([]Variant, int64, error)
	// SaveVariants replaces the variants if the product is still at
	// expectedVersion, returning ErrVersionConflict otherwise.
	SaveVariants(ctx context.Context, productID string, variants []Variant, expectedVersion int64) error
}

// StockRepository gives the inventory adjuster row-locked access to stock.
type StockRepository interface {
	// GetForUpdate loads a product and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Product, error)
	// UpdateStock stores product level and variant level inventory.
	UpdateStock(ctx context.Context, id string, inventory int, variants []Variant) error
	// FindBySKU resolves a product or variant SKU.
	FindBySKU(ctx context.Context, sku string) (productID, variantID string, err error)
}
