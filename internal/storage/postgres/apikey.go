package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/shop-core/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository returns an APIKeyRepository over db.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Put stores a hashed key.
func (r *APIKeyRepository) Put(ctx context.Context, key auth.APIKeyInfo) error {
	if _, err := r.db.q(ctx).Exec(ctx, upsertAPIKeySQL, key.ID, key.KeyHash, key.Name, key.Scopes); err != nil {
		if isUniqueViolation(err, "api_keys_key_hash_key") {
			return errors.Errorf("api key %q: hash already registered", key.ID)
		}
		return errors.Wrapf(err, "put api key %q", key.ID)
	}
	return nil
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.db.q(ctx).QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	return &info, nil
}
