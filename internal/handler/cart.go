package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/shop-core/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.Carts.Read(ctx, ownerFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		productID, variantID string
		quantity             int
		hasQuantity          bool
	)
	if err := decodeBody(r, map[string]field{
		"product_id": str(&productID),
		"variant_id": str(&variantID),
		"quantity":   integer(&quantity, &hasQuantity),
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if productID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", "product_id is required")
		return
	}
	if !hasQuantity {
		quantity = 1
	}

	line, err := h.Carts.AddItem(ctx, ownerFrom(ctx), productID, variantID, quantity)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, line) })
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		quantity    int
		hasQuantity bool
	)
	if err := decodeBody(r, map[string]field{
		"quantity": integer(&quantity, &hasQuantity),
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !hasQuantity {
		h.writeError(ctx, w, cart.ErrInvalidQuantity)
		return
	}

	line, err := h.Carts.UpdateItem(ctx, ownerFrom(ctx), chi.URLParam(r, "lineID"), quantity)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLine(e, line) })
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Carts.RemoveItem(ctx, ownerFrom(ctx), chi.URLParam(r, "lineID")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Carts.Clear(ctx, ownerFrom(ctx)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeLine(e *jx.Encoder, l *cart.Line) {
	e.ObjStart()
	encStr(e, "id", l.ID)
	encStr(e, "product_id", l.ProductID)
	if l.VariantID != "" {
		encStr(e, "variant_id", l.VariantID)
	}
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	encTime(e, "created_at", l.CreatedAt)
	encTime(e, "updated_at", l.UpdatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		e.ObjStart()
		encStr(e, "id", it.ID)
		encStr(e, "product_id", it.ProductID)
		if it.VariantID != "" {
			encStr(e, "variant_id", it.VariantID)
			encStr(e, "variant_name", it.VariantName)
		}
		encStr(e, "name", it.Name)
		encStr(e, "sku", it.SKU)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("available")
		e.Bool(it.Available)
		encMoney(e, "unit_price", it.UnitPrice)
		encMoney(e, "line_total", it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	encMoney(e, "subtotal", c.Subtotal)
	e.FieldStart("total_items")
	e.Int(c.TotalItems)
	e.ObjEnd()
}
