package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/account"
)

const (
	loadProfileSQL = `SELECT addresses, payment_methods, version FROM profiles WHERE owner_id = $1`

	insertProfileSQL = `INSERT INTO profiles (owner_id, addresses, payment_methods, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (owner_id) DO NOTHING`

	updateProfileSQL = `UPDATE profiles SET addresses = $2, payment_methods = $3, version = version + 1
		WHERE owner_id = $1 AND version = $4`
)

var _ account.Repository = (*ProfileRepository)(nil)

// ProfileRepository stores address books as JSONB lists guarded by a version
// column.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository returns a ProfileRepository over db.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Load(ctx context.Context, ownerID string) (*account.Profile, error) {
	p := &account.Profile{OwnerID: ownerID}
	err := r.db.q(ctx).QueryRow(ctx, loadProfileSQL, ownerID).Scan(&p.Addresses, &p.PaymentMethods, &p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load profile %q", ownerID)
	}
	return p, nil
}

func (r *ProfileRepository) Save(ctx context.Context, p *account.Profile, expectedVersion int64) error {
	addresses, methods := p.Addresses, p.PaymentMethods
	if addresses == nil {
		addresses = []account.Address{}
	}
	if methods == nil {
		methods = []account.PaymentMethod{}
	}

	sql, args := updateProfileSQL, []any{p.OwnerID, addresses, methods, expectedVersion}
	if expectedVersion == 0 {
		sql, args = insertProfileSQL, args[:3]
	}
	tag, err := r.db.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return errors.Wrapf(err, "save profile %q", p.OwnerID)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	return nil
}
