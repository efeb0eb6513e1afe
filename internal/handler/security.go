package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/auth"
)

// Request headers carrying caller identity.
const (
	APIKeyHeader  = "X-API-Key"
	OwnerIDHeader = "X-Owner-ID"
)

type (
	keyInfoKey struct{}
	ownerKey   struct{}
)

// requireKey authenticates the API key and checks scope.
func (h *Handler) requireKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, err := h.Auth.Authenticate(ctx, r.Header.Get(APIKeyHeader), scope)
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				zctx.From(ctx).Warn("Rejected API key",
					zap.Bool("security", true),
					zap.String("path", r.URL.Path),
				)
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
				return
			case errors.Is(err, auth.ErrForbidden):
				writeProblem(w, http.StatusForbidden, "forbidden", "API key lacks the "+scope+" scope")
				return
			case err != nil:
				h.writeError(ctx, w, err)
				return
			}

			ctx = context.WithValue(ctx, keyInfoKey{}, info)
			ctx = zctx.With(ctx, zap.String("api_key", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireOwner reads the shopper id. Every owner-scoped route needs one.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerIDHeader)
		if owner == "" || len(owner) > 128 {
			writeProblem(w, http.StatusBadRequest, "invalid_argument", OwnerIDHeader+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = zctx.With(ctx, zap.String("owner_id", owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// KeyFromContext returns the authenticated API key, if any.
func KeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(keyInfoKey{}).(*auth.APIKeyInfo)
	return info, ok
}
