package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/cart"
)

const (
	lineColumns = `id, owner_id, product_id, variant_id, quantity, created_at, updated_at`

	findLineSQL = `SELECT ` + lineColumns + ` FROM cart_lines
		WHERE owner_id = $1 AND product_id = $2 AND variant_id = $3`

	getLineSQL = `SELECT ` + lineColumns + ` FROM cart_lines WHERE owner_id = $1 AND id = $2`

	insertLineSQL = `INSERT INTO cart_lines (` + lineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT cart_lines_owner_product_variant_key DO NOTHING`

	addQuantitySQL = `UPDATE cart_lines SET quantity = quantity + $3, updated_at = $4
		WHERE owner_id = $1 AND id = $2 RETURNING ` + lineColumns

	setQuantitySQL = `UPDATE cart_lines SET quantity = $3, updated_at = $4
		WHERE owner_id = $1 AND id = $2 RETURNING ` + lineColumns

	deleteLineSQL = `DELETE FROM cart_lines WHERE owner_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_lines WHERE owner_id = $1`

	listLinesSQL = `SELECT ` + lineColumns + ` FROM cart_lines WHERE owner_id = $1 ORDER BY created_at, id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository. The unique constraint on
// (owner_id, product_id, variant_id) keeps carts free of duplicate lines.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository over db.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) one(ctx context.Context, sql string, args ...any) (*cart.Line, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	l, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[cart.Line])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *CartRepository) Find(ctx context.Context, ownerID, productID, variantID string) (*cart.Line, error) {
	l, err := r.one(ctx, findLineSQL, ownerID, productID, variantID)
	if err != nil && !errors.Is(err, cart.ErrLineNotFound) {
		return nil, errors.Wrap(err, "find cart line")
	}
	return l, err
}

func (r *CartRepository) Insert(ctx context.Context, l *cart.Line) error {
	tag, err := r.db.q(ctx).Exec(ctx, insertLineSQL,
		l.ID, l.OwnerID, l.ProductID, l.VariantID, l.Quantity, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return cart.ErrDuplicateLine
		}
		return errors.Wrap(err, "insert cart line")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrDuplicateLine
	}
	return nil
}

func (r *CartRepository) AddQuantity(ctx context.Context, ownerID, lineID string, delta int, at time.Time) (*cart.Line, error) {
	l, err := r.one(ctx, addQuantitySQL, ownerID, lineID, delta, at)
	if err != nil && !errors.Is(err, cart.ErrLineNotFound) {
		return nil, errors.Wrap(err, "add quantity")
	}
	return l, err
}

func (r *CartRepository) SetQuantity(ctx context.Context, ownerID, lineID string, quantity int, at time.Time) (*cart.Line, error) {
	l, err := r.one(ctx, setQuantitySQL, ownerID, lineID, quantity, at)
	if err != nil && !errors.Is(err, cart.ErrLineNotFound) {
		return nil, errors.Wrap(err, "set quantity")
	}
	return l, err
}

func (r *CartRepository) Get(ctx context.Context, ownerID, lineID string) (*cart.Line, error) {
	l, err := r.one(ctx, getLineSQL, ownerID, lineID)
	if err != nil && !errors.Is(err, cart.ErrLineNotFound) {
		return nil, errors.Wrap(err, "get cart line")
	}
	return l, err
}

func (r *CartRepository) Delete(ctx context.Context, ownerID, lineID string) error {
	tag, err := r.db.q(ctx).Exec(ctx, deleteLineSQL, ownerID, lineID)
	if err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, ownerID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, clearCartSQL, ownerID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (r *CartRepository) List(ctx context.Context, ownerID string) ([]cart.Line, error) {
	rows, err := r.db.q(ctx).Query(ctx, listLinesSQL, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[cart.Line])
}
