package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, min_items, description,
		valid_from, valid_until, max_uses, uses, max_discount
		FROM coupons WHERE code = UPPER($1) AND active = TRUE`

	// Uses never pass max_uses, even under concurrent redemptions.
	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = UPPER($1) AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_items, description,
		valid_from, valid_until, max_uses, max_discount)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_items = EXCLUDED.min_items, description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses, max_discount = EXCLUDED.max_discount, active = TRUE`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository over db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// Put inserts or replaces a rule, keeping its use count.
func (r *CouponRepository) Put(ctx context.Context, rule coupon.Rule) error {
	_, err := r.db.q(ctx).Exec(ctx, upsertCouponSQL,
		rule.Code, rule.DiscountType, rule.Value, rule.MinItems, rule.Description,
		rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.MaxDiscount,
	)
	if err != nil {
		return errors.Wrapf(err, "put coupon %q", rule.Code)
	}
	return nil
}

// FindByCode looks up an active coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.db.q(ctx).Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// IncrementUses records a redemption unless the coupon ran out of uses.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	code = coupon.NormalizeCode(code)
	tag, err := r.db.q(ctx).Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses of coupon %q", code)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByCode(ctx, code); err != nil {
		return err
	}
	return coupon.ErrCouponUsageLimitReached
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var rule coupon.Rule
	err := row.Scan(
		&rule.Code, &rule.DiscountType, &rule.Value, &rule.MinItems, &rule.Description,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses, &rule.MaxDiscount,
	)
	return rule, err
}
