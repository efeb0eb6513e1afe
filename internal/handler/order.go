package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/shop-core/internal/domain/checkout"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := checkout.PlaceOrderRequest{OwnerID: ownerFrom(ctx)}
	if err := decodeBody(r, map[string]field{
		"shipping_address_id": str(&req.ShippingAddressID),
		"billing_address_id":  str(&req.BillingAddressID),
		"payment_method_id":   str(&req.PaymentMethodID),
		"coupon_code":         str(&req.CouponCode),
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	o, err := h.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.Get(ctx, ownerFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.Checkout.StartPayment(ctx, ownerFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encStr(e, "order_id", s.OrderID)
		encStr(e, "order_number", s.OrderNumber)
		encStr(e, "gateway_order_id", s.GatewayOrderID)
		e.FieldStart("amount")
		e.Int64(s.AmountMinor)
		encStr(e, "currency", s.Currency)
		encStr(e, "key_id", s.KeyID)
		e.ObjEnd()
	})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req payment.VerifyRequest
	if err := decodeBody(r, map[string]field{
		"order_id":           str(&req.OrderID),
		"gateway_order_id":   str(&req.GatewayOrderID),
		"gateway_payment_id": str(&req.GatewayPaymentID),
		"signature":          str(&req.Signature),
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	res, err := h.Payments.Verify(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encStr(e, "status", "verified")
		encStr(e, "order_id", res.OrderID)
		encStr(e, "order_number", res.OrderNumber)
		encStr(e, "payment_id", res.PaymentID)
		encStr(e, "order_status", string(res.Status))
		encStr(e, "payment_status", string(res.PaymentStatus))
		if n := len(res.Inventory.Shortages); n > 0 {
			e.FieldStart("inventory_shortages")
			e.Int(n)
		}
		e.ObjEnd()
	})
}

func (h *Handler) reportFailure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var rep payment.FailureReport
	if err := decodeBody(r, map[string]field{
		"order_id":           str(&rep.OrderID),
		"gateway_order_id":   str(&rep.GatewayOrderID),
		"gateway_payment_id": str(&rep.GatewayPaymentID),
		"reason":             str(&rep.Reason),
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	// Shoppers may only report on their own orders.
	if _, err := h.Orders.Get(ctx, ownerFrom(ctx), rep.OrderID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.Payments.ReportFailure(ctx, rep); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, func(e *jx.Encoder) {
		e.ObjStart()
		encStr(e, "status", "recorded")
		encStr(e, "message", "payment failed, you can retry payment for this order")
		e.ObjEnd()
	})
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status string
	if err := decodeBody(r, map[string]field{"status": str(&status)}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	o, err := h.Orders.Transition(ctx, chi.URLParam(r, "id"), order.Status(status))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	encStr(e, "id", o.ID)
	encStr(e, "number", o.Number)
	encStr(e, "status", string(o.Status))
	encStr(e, "payment_status", string(o.PaymentStatus))
	encMoney(e, "sub_total", o.SubTotal)
	encMoney(e, "tax_amount", o.TaxAmount)
	encMoney(e, "shipping_amount", o.ShippingAmount)
	encMoney(e, "discount_amount", o.DiscountAmount)
	encMoney(e, "grand_total", o.GrandTotal)
	encStr(e, "currency", o.Currency)
	if o.CouponCode != "" {
		encStr(e, "coupon_code", o.CouponCode)
	}
	e.FieldStart("shipping_address")
	encodeAddress(e, o.ShippingAddress)
	e.FieldStart("billing_address")
	encodeAddress(e, o.BillingAddress)
	if o.PaymentMethod.ID != "" {
		e.FieldStart("payment_method")
		encodePaymentMethod(e, o.PaymentMethod)
	}
	if o.GatewayOrderID != "" {
		encStr(e, "gateway_order_id", o.GatewayOrderID)
	}
	if o.NeedsReconciliation {
		e.FieldStart("needs_reconciliation")
		e.Bool(true)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		encStr(e, "product_id", it.ProductID)
		if it.VariantID != "" {
			encStr(e, "variant_id", it.VariantID)
		}
		encStr(e, "sku", it.SKU)
		encStr(e, "name", it.Name)
		encMoney(e, "unit_price", it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		encMoney(e, "line_total", it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	encTime(e, "created_at", o.CreatedAt)
	encTime(e, "updated_at", o.UpdatedAt)
	e.ObjEnd()
}
