package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

var (
	// ErrInvalidQuantity is returned when a quantity is not positive.
	ErrInvalidQuantity = apperr.New(apperr.InvalidQuantity, "quantity must be at least 1")
	// ErrLineNotFound is returned when a line does not exist or belongs to
	// another owner.
	ErrLineNotFound = apperr.New(apperr.NotFound, "cart item not found")
	// ErrDuplicateLine is returned by Repository.Insert when a line for the
	// same owner, product and variant already exists.
	ErrDuplicateLine = apperr.New(apperr.ConstraintViolation, "cart item already exists")
	// ErrConcurrentUpdate is returned when an add keeps losing races against
	// concurrent writers.
	ErrConcurrentUpdate = apperr.New(apperr.ConstraintViolation, "cart is being updated, please retry")
)

// Line is one stored cart entry. VariantID is empty when the product is
// added without a variant.
type Line struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a line joined with current catalog data.
type Item struct {
	Line
	Name        string
	SKU         string
	VariantName string
	// Available is false when the product or variant no longer exists.
	// Such items carry zero prices and are excluded from totals.
	Available bool
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Cart is computed on every read and never stored.
type Cart struct {
	OwnerID    string
	Items      []Item
	Subtotal   decimal.Decimal
	TotalItems int
}

// Repository stores cart lines. Implementations must enforce uniqueness of
// (owner, product, variant) at the storage level.
type Repository interface {
	// Find returns the line for the triple or ErrLineNotFound.
	Find(ctx context.Context, ownerID, productID, variantID string) (*Line, error)
	// Insert stores a new line, returning ErrDuplicateLine on a uniqueness
	// violation.
	Insert(ctx context.Context, line *Line) error
	// AddQuantity atomically adds delta to the quantity of a line.
	AddQuantity(ctx context.Context, ownerID, lineID string, delta int, at time.Time) (*Line, error)
	// SetQuantity overwrites the quantity of a line.
	SetQuantity(ctx context.Context, ownerID, lineID string, quantity int, at time.Time) (*Line, error)
	Get(ctx context.Context, ownerID, lineID string) (*Line, error)
	Delete(ctx context.Context, ownerID, lineID string) error
	Clear(ctx context.Context, ownerID string) error
	// List returns the lines of owner ordered by creation time.
	List(ctx context.Context, ownerID string) ([]Line, error)
}
