package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/xenking/shop-core/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores cart lines. (owner, product, variant) is unique.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository over db.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) find(ownerID, productID, variantID string) (cart.Line, bool) {
	for _, l := range r.db.lines {
		if l.OwnerID == ownerID && l.ProductID == productID && l.VariantID == variantID {
			return l, true
		}
	}
	return cart.Line{}, false
}

func (r *CartRepository) owned(ownerID, lineID string) (cart.Line, error) {
	l, ok := r.db.lines[lineID]
	if !ok || l.OwnerID != ownerID {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return l, nil
}

func (r *CartRepository) Find(ctx context.Context, ownerID, productID, variantID string) (*cart.Line, error) {
	var out cart.Line
	err := r.db.run(ctx, func() error {
		l, ok := r.find(ownerID, productID, variantID)
		if !ok {
			return cart.ErrLineNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CartRepository) Insert(ctx context.Context, line *cart.Line) error {
	return r.db.run(ctx, func() error {
		if _, ok := r.find(line.OwnerID, line.ProductID, line.VariantID); ok {
			return cart.ErrDuplicateLine
		}
		if _, ok := r.db.lines[line.ID]; ok {
			return cart.ErrDuplicateLine
		}
		r.db.lines[line.ID] = *line
		return nil
	})
}

func (r *CartRepository) update(ctx context.Context, ownerID, lineID string, fn func(*cart.Line)) (*cart.Line, error) {
	var out cart.Line
	err := r.db.run(ctx, func() error {
		l, err := r.owned(ownerID, lineID)
		if err != nil {
			return err
		}
		fn(&l)
		r.db.lines[lineID] = l
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CartRepository) AddQuantity(ctx context.Context, ownerID, lineID string, delta int, at time.Time) (*cart.Line, error) {
	return r.update(ctx, ownerID, lineID, func(l *cart.Line) {
		l.Quantity += delta
		l.UpdatedAt = at
	})
}

func (r *CartRepository) SetQuantity(ctx context.Context, ownerID, lineID string, quantity int, at time.Time) (*cart.Line, error) {
	return r.update(ctx, ownerID, lineID, func(l *cart.Line) {
		l.Quantity = quantity
		l.UpdatedAt = at
	})
}

func (r *CartRepository) Get(ctx context.Context, ownerID, lineID string) (*cart.Line, error) {
	var out cart.Line
	err := r.db.run(ctx, func() error {
		l, err := r.owned(ownerID, lineID)
		out = l
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CartRepository) Delete(ctx context.Context, ownerID, lineID string) error {
	return r.db.run(ctx, func() error {
		if _, err := r.owned(ownerID, lineID); err != nil {
			return err
		}
		delete(r.db.lines, lineID)
		return nil
	})
}

func (r *CartRepository) Clear(ctx context.Context, ownerID string) error {
	return r.db.run(ctx, func() error {
		for id, l := range r.db.lines {
			if l.OwnerID == ownerID {
				delete(r.db.lines, id)
			}
		}
		return nil
	})
}

func (r *CartRepository) List(ctx context.Context, ownerID string) ([]cart.Line, error) {
	var out []cart.Line
	err := r.db.run(ctx, func() error {
		for _, l := range r.db.lines {
			if l.OwnerID == ownerID {
				out = append(out, l)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b cart.Line) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, err
}
