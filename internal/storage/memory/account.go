package memory

import (
	"context"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/coupon"
)

var (
	_ account.Repository = (*ProfileRepository)(nil)
	_ coupon.Repository  = (*CouponRepository)(nil)
	_ auth.Repository    = (*APIKeyRepository)(nil)
)

// ProfileRepository stores address books under optimistic versioning.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository returns a ProfileRepository over db.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Load(ctx context.Context, ownerID string) (*account.Profile, error) {
	out := account.Profile{OwnerID: ownerID}
	err := r.db.run(ctx, func() error {
		if p, ok := r.db.profiles[ownerID]; ok {
			out = cloneProfile(p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ProfileRepository) Save(ctx context.Context, p *account.Profile, expectedVersion int64) error {
	return r.db.run(ctx, func() error {
		if r.db.profiles[p.OwnerID].Version != expectedVersion {
			return account.ErrVersionConflict
		}
		stored := cloneProfile(*p)
		stored.Version = expectedVersion + 1
		r.db.profiles[p.OwnerID] = stored
		p.Version = stored.Version
		return nil
	})
}

// CouponRepository stores coupon rules keyed by normalized code.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository over db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// Put inserts or replaces a rule.
func (r *CouponRepository) Put(ctx context.Context, rule coupon.Rule) error {
	rule.Code = coupon.NormalizeCode(rule.Code)
	return r.db.run(ctx, func() error {
		r.db.coupons[rule.Code] = rule
		return nil
	})
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	var out coupon.Rule
	err := r.db.run(ctx, func() error {
		rule, ok := r.db.coupons[coupon.NormalizeCode(code)]
		if !ok {
			return coupon.ErrInvalidCoupon
		}
		out = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	code = coupon.NormalizeCode(code)
	return r.db.run(ctx, func() error {
		rule, ok := r.db.coupons[code]
		if !ok {
			return coupon.ErrInvalidCoupon
		}
		if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
			return coupon.ErrCouponUsageLimitReached
		}
		rule.Uses++
		r.db.coupons[code] = rule
		return nil
	})
}

// APIKeyRepository stores hashed API keys. Keys are not part of
// transactions.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository returns an APIKeyRepository over db.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Put stores a key by its hash.
func (r *APIKeyRepository) Put(ctx context.Context, key auth.APIKeyInfo) error {
	return r.db.run(ctx, func() error {
		r.db.apiKeys[key.KeyHash] = key
		return nil
	})
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var out auth.APIKeyInfo
	err := r.db.run(ctx, func() error {
		k, ok := r.db.apiKeys[hash]
		if !ok {
			return auth.ErrKeyNotFound
		}
		out = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
