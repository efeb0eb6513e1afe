package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/shop-core/internal/domain/product"
)

func variantFields(v *product.Variant) map[string]field {
	return map[string]field{
		"name":       str(&v.Name),
		"sku":        str(&v.SKU),
		"price":      money(&v.Price),
		"inventory":  integer(&v.Inventory, nil),
		"is_default": boolean(&v.IsDefault),
		"attributes": strMap(&v.Attributes),
	}
}

func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Variants.List(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range list {
			encodeVariant(e, v)
		}
		e.ArrEnd()
	})
}

func (h *Handler) addVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var v product.Variant
	if err := decodeBody(r, variantFields(&v)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	added, err := h.Variants.Add(ctx, chi.URLParam(r, "id"), v)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeVariant(e, added) })
}

func (h *Handler) updateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var v product.Variant
	if err := decodeBody(r, variantFields(&v)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	v.ID = chi.URLParam(r, "variantID")
	updated, err := h.Variants.Update(ctx, chi.URLParam(r, "id"), v)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVariant(e, updated) })
}

func (h *Handler) removeVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Variants.Remove(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "variantID")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDefaultVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Variants.SetDefault(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "variantID")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeVariant(e *jx.Encoder, v product.Variant) {
	e.ObjStart()
	encStr(e, "id", v.ID)
	encStr(e, "product_id", v.ProductID)
	encStr(e, "name", v.Name)
	encStr(e, "sku", v.SKU)
	if v.Price.Valid {
		encMoney(e, "price", v.Price.Decimal)
	}
	e.FieldStart("inventory")
	e.Int(v.Inventory)
	e.FieldStart("is_default")
	e.Bool(v.IsDefault)
	if len(v.Attributes) > 0 {
		keys := make([]string, 0, len(v.Attributes))
		for k := range v.Attributes {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		e.FieldStart("attributes")
		e.ObjStart()
		for _, k := range keys {
			encStr(e, k, v.Attributes[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}
