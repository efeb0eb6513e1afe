// Package cart keeps shopper carts free of duplicate lines and prices them
// against the live catalog on every read.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/product"
)

// maxAddAttempts bounds how often an add falls back from a duplicate insert
// to an increment.
const maxAddAttempts = 3

// Service implements cart operations on top of a Repository.
type Service struct {
	lines    Repository
	products product.Repository
	lg       *zap.Logger
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(lines Repository, products product.Repository, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		lines:    lines,
		products: products,
		lg:       lg,
		now:      time.Now,
	}
}

// AddItem adds quantity units of a product, or of one of its variants, to the
// owner's cart. An existing line for the same product and variant is
// incremented instead of duplicated.
func (s *Service) AddItem(ctx context.Context, ownerID, productID, variantID string, quantity int) (*Line, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if variantID != "" {
		if _, ok := p.Variant(variantID); !ok {
			return nil, product.ErrVariantNotFound
		}
	}

	for attempt := 1; attempt <= maxAddAttempts; attempt++ {
		now := s.now()
		existing, err := s.lines.Find(ctx, ownerID, productID, variantID)
		switch {
		case err == nil:
			line, err := s.lines.AddQuantity(ctx, ownerID, existing.ID, quantity, now)
			if errors.Is(err, ErrLineNotFound) {
				// Removed between find and update.
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, "increment line")
			}
			return line, nil
		case !errors.Is(err, ErrLineNotFound):
			return nil, errors.Wrap(err, "find line")
		}

		line := &Line{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.lines.Insert(ctx, line)
		if err == nil {
			return line, nil
		}
		if !errors.Is(err, ErrDuplicateLine) {
			return nil, errors.Wrap(err, "insert line")
		}
		s.lg.Debug("Concurrent add of the same cart line, retrying as update",
			zap.String("owner_id", ownerID),
			zap.String("product_id", productID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrConcurrentUpdate
}

// UpdateItem sets the quantity of a line. Use RemoveItem to drop a line.
func (s *Service) UpdateItem(ctx context.Context, ownerID, lineID string, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	line, err := s.lines.SetQuantity(ctx, ownerID, lineID, quantity, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "set quantity")
	}
	return line, nil
}

// RemoveItem deletes a line owned by ownerID.
func (s *Service) RemoveItem(ctx context.Context, ownerID, lineID string) error {
	if err := s.lines.Delete(ctx, ownerID, lineID); err != nil {
		return errors.Wrap(err, "delete line")
	}
	return nil
}

// Clear empties the owner's cart.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	if err := s.lines.Clear(ctx, ownerID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Lines returns the raw lines of the owner's cart.
func (s *Service) Lines(ctx context.Context, ownerID string) ([]Line, error) {
	lines, err := s.lines.List(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return lines, nil
}

// Read prices the owner's cart against current catalog data.
func (s *Service) Read(ctx context.Context, ownerID string) (*Cart, error) {
	lines, err := s.Lines(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c := &Cart{OwnerID: ownerID, Items: make([]Item, 0, len(lines)), Subtotal: decimal.Zero}
	if len(lines) == 0 {
		return c, nil
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	now := s.now()
	for _, l := range lines {
		item := Item{Line: l, UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		p, ok := byID[l.ProductID]
		if ok {
			item.Name = p.Name
			item.SKU = p.SKU
			var v *product.Variant
			if l.VariantID != "" {
				v, ok = p.Variant(l.VariantID)
			}
			if ok {
				if v != nil {
					item.VariantName = v.Name
					item.SKU = v.SKU
				}
				item.Available = true
				// Rounded like the order builder so the cart and the order agree.
				item.UnitPrice = product.ResolvePrice(*p, v, now).Round(2)
				item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
			}
		}
		if item.Available {
			c.Subtotal = c.Subtotal.Add(item.LineTotal)
			c.TotalItems += l.Quantity
		}
		c.Items = append(c.Items, item)
	}
	c.Subtotal = c.Subtotal.Round(2)
	return c, nil
}
