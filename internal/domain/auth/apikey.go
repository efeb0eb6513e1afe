// Package auth authenticates API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

// Scopes granted to API keys.
const (
	ScopeShop  = "shop"
	ScopeAdmin = "admin"
)

var (
	// ErrKeyNotFound is returned by Repository.FindByHash for unknown keys.
	ErrKeyNotFound = apperr.New(apperr.NotFound, "api key not found")
	// ErrUnauthorized is returned for missing or invalid keys.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a key lacks the required scope.
	ErrForbidden = errors.New("forbidden")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope. Admin keys hold every
// scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of a raw key under pepper. Only hashes
// are stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys.
type Authenticator struct {
	repo   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(repo Repository, pepper []byte) *Authenticator {
	return &Authenticator{repo: repo, pepper: pepper}
}

// Authenticate resolves key and checks that it carries scope.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(a.pepper, key)
	info, err := a.repo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The lookup matched on hash already; compare again in constant time in
	// case the store matched loosely.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	if !info.HasScope(scope) {
		return nil, ErrForbidden
	}
	return info, nil
}
