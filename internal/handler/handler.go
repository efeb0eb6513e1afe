// Package handler exposes the shop services over a JSON HTTP API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/checkout"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Deps are the services behind the API.
type Deps struct {
	Carts    *cart.Service
	Accounts *account.Service
	Variants *product.VariantService
	Orders   *order.Service
	Checkout *checkout.Service
	Payments *payment.Service
	Auth     *auth.Authenticator
}

// Handler serves the shop API.
type Handler struct {
	Deps
	lg *zap.Logger
}

// New creates a Handler.
func New(deps Deps, lg *zap.Logger) *Handler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handler{Deps: deps, lg: lg}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// The gateway signs callbacks; the signature is the credential.
		r.Post("/payments/callback", h.verifyPayment)

		r.Group(func(r chi.Router) {
			r.Use(h.requireKey(auth.ScopeShop), requireOwner)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Post("/items", h.addCartItem)
				r.Patch("/items/{lineID}", h.updateCartItem)
				r.Delete("/items/{lineID}", h.removeCartItem)
			})
			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", h.listAddresses)
				r.Post("/", h.addAddress)
				r.Put("/{id}", h.updateAddress)
				r.Delete("/{id}", h.removeAddress)
				r.Post("/{id}/default", h.setDefaultAddress)
			})
			r.Route("/payment-methods", func(r chi.Router) {
				r.Get("/", h.listPaymentMethods)
				r.Post("/", h.addPaymentMethod)
				r.Put("/{id}", h.updatePaymentMethod)
				r.Delete("/{id}", h.removePaymentMethod)
				r.Post("/{id}/default", h.setDefaultPaymentMethod)
			})
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.placeOrder)
				r.Get("/{id}", h.getOrder)
				r.Post("/{id}/payment", h.startPayment)
			})
			r.Post("/payments/failure", h.reportFailure)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireKey(auth.ScopeAdmin))

			r.Route("/products/{id}/variants", func(r chi.Router) {
				r.Get("/", h.listVariants)
				r.Post("/", h.addVariant)
				r.Put("/{variantID}", h.updateVariant)
				r.Delete("/{variantID}", h.removeVariant)
				r.Post("/{variantID}/default", h.setDefaultVariant)
			})
			r.Patch("/orders/{id}/status", h.transitionOrder)
		})
	})
}

// Router returns a chi router with the API mounted and JSON 404/405
// responses.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	h.Mount(r)
	return r
}
