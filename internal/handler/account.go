package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/shop-core/internal/domain/account"
)

func addressFields(a *account.Address) map[string]field {
	return map[string]field{
		"full_name":   str(&a.FullName),
		"line1":       str(&a.Line1),
		"line2":       str(&a.Line2),
		"city":        str(&a.City),
		"state":       str(&a.State),
		"postal_code": str(&a.PostalCode),
		"country":     str(&a.Country),
		"phone":       str(&a.Phone),
		"is_default":  boolean(&a.IsDefault),
	}
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Accounts.Addresses(ctx, ownerFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, a := range list {
			encodeAddress(e, a)
		}
		e.ArrEnd()
	})
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var a account.Address
	if err := decodeBody(r, addressFields(&a)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	added, err := h.Accounts.AddAddress(ctx, ownerFrom(ctx), a)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeAddress(e, added) })
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var a account.Address
	if err := decodeBody(r, addressFields(&a)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	a.ID = chi.URLParam(r, "id")
	updated, err := h.Accounts.UpdateAddress(ctx, ownerFrom(ctx), a)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAddress(e, updated) })
}

func (h *Handler) removeAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Accounts.RemoveAddress(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Accounts.SetDefaultAddress(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func methodFields(m *account.PaymentMethod) map[string]field {
	return map[string]field{
		"kind": func(d *jx.Decoder) error {
			s, err := d.Str()
			m.Kind = account.MethodKind(s)
			return err
		},
		"label":         str(&m.Label),
		"last4":         str(&m.Last4),
		"exp_month":     integer(&m.ExpMonth, nil),
		"exp_year":      integer(&m.ExpYear, nil),
		"gateway_token": str(&m.GatewayToken),
		"is_default":    boolean(&m.IsDefault),
	}
}

func (h *Handler) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Accounts.PaymentMethods(ctx, ownerFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, m := range list {
			encodePaymentMethod(e, m)
		}
		e.ArrEnd()
	})
}

func (h *Handler) addPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var m account.PaymentMethod
	if err := decodeBody(r, methodFields(&m)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	added, err := h.Accounts.AddPaymentMethod(ctx, ownerFrom(ctx), m)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePaymentMethod(e, added) })
}

func (h *Handler) updatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var m account.PaymentMethod
	if err := decodeBody(r, methodFields(&m)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	m.ID = chi.URLParam(r, "id")
	updated, err := h.Accounts.UpdatePaymentMethod(ctx, ownerFrom(ctx), m)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePaymentMethod(e, updated) })
}

func (h *Handler) removePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Accounts.RemovePaymentMethod(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Accounts.SetDefaultPaymentMethod(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeAddress(e *jx.Encoder, a account.Address) {
	e.ObjStart()
	encStr(e, "id", a.ID)
	encStr(e, "full_name", a.FullName)
	encStr(e, "line1", a.Line1)
	if a.Line2 != "" {
		encStr(e, "line2", a.Line2)
	}
	encStr(e, "city", a.City)
	if a.State != "" {
		encStr(e, "state", a.State)
	}
	encStr(e, "postal_code", a.PostalCode)
	encStr(e, "country", a.Country)
	if a.Phone != "" {
		encStr(e, "phone", a.Phone)
	}
	e.FieldStart("is_default")
	e.Bool(a.IsDefault)
	e.ObjEnd()
}

// encodePaymentMethod leaves out the gateway token.
func encodePaymentMethod(e *jx.Encoder, m account.PaymentMethod) {
	e.ObjStart()
	encStr(e, "id", m.ID)
	encStr(e, "kind", string(m.Kind))
	encStr(e, "label", m.Label)
	if m.Last4 != "" {
		encStr(e, "last4", m.Last4)
	}
	if m.ExpMonth != 0 {
		e.FieldStart("exp_month")
		e.Int(m.ExpMonth)
		e.FieldStart("exp_year")
		e.Int(m.ExpYear)
	}
	e.FieldStart("is_default")
	e.Bool(m.IsDefault)
	e.ObjEnd()
}
