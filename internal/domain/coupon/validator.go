package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator prices coupon codes against cart items.
type Validator interface {
	// Quote computes the discount without consuming a use.
	Quote(ctx context.Context, code string, items []Item) (*Discount, error)
	// Redeem computes the discount and records one use. Callers run it in the
	// same transaction that creates the order.
	Redeem(ctx context.Context, code string, items []Item) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Quote implements Validator.
func (v *RepoValidator) Quote(ctx context.Context, code string, items []Item) (*Discount, error) {
	rule, err := v.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	d, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem implements Validator.
func (v *RepoValidator) Redeem(ctx context.Context, code string, items []Item) (*Discount, error) {
	d, err := v.Quote(ctx, code, items)
	if err != nil {
		return nil, err
	}
	if err := v.repo.IncrementUses(ctx, d.Code); err != nil {
		if errors.Is(err, ErrCouponUsageLimitReached) {
			return nil, ErrCouponUsageLimitReached
		}
		return nil, errors.Wrap(err, "increment coupon uses")
	}
	return d, nil
}

func (v *RepoValidator) lookup(ctx context.Context, code string) (*Rule, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}
	return rule, nil
}
