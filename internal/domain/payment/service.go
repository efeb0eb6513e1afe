package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/event"
	"github.com/xenking/shop-core/internal/domain/inventory"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/tx"
)

// VerifyRequest is an inbound gateway callback.
type VerifyRequest struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerificationResult describes a successful first verification.
type VerificationResult struct {
	OrderID       string
	OrderNumber   string
	PaymentID     string
	Status        order.Status
	PaymentStatus order.PaymentStatus
	Inventory     inventory.Report
}

// FailureReport is a gateway-reported failed payment.
type FailureReport struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Reason           string
}

// InventoryApplier decrements stock for a paid order.
type InventoryApplier interface {
	ApplyOrder(ctx context.Context, o *order.Order) (inventory.Report, error)
}

// CartClearer empties a cart once its order is paid.
type CartClearer interface {
	Clear(ctx context.Context, ownerID string) error
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider for verification metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service verifies payment callbacks and applies their side effects exactly
// once.
type Service struct {
	secret    []byte
	orders    order.Repository
	payments  Repository
	inventory InventoryApplier
	carts     CartClearer
	tx        tx.Transactor
	events    event.Publisher
	lg        *zap.Logger
	now       func() time.Time

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	verifications  metric.Int64Counter
}

// NewService creates a payment Service. secret is the gateway webhook secret.
func NewService(
	secret []byte,
	orders order.Repository,
	payments Repository,
	inv InventoryApplier,
	carts CartClearer,
	transactor tx.Transactor,
	events event.Publisher,
	lg *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("payment webhook secret is required")
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if transactor == nil {
		transactor = tx.None
	}
	s := &Service{
		secret:         secret,
		orders:         orders,
		payments:       payments,
		inventory:      inv,
		carts:          carts,
		tx:             transactor,
		events:         events,
		lg:             lg,
		now:            time.Now,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const scope = "github.com/xenking/shop-core/internal/domain/payment"
	s.tracer = s.tracerProvider.Tracer(scope)
	counter, err := s.meterProvider.Meter(scope).Int64Counter("shop.payment.verifications",
		metric.WithDescription("Payment callback verifications by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create verifications counter")
	}
	s.verifications = counter
	return s, nil
}

func (s *Service) count(ctx context.Context, result string) {
	s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Verify authenticates a gateway callback and, on the first valid delivery,
// marks the order paid, applies inventory and clears the owner's cart in one
// transaction. Replays return ErrAlreadyVerified without side effects.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (_ *VerificationResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Verify",
		trace.WithAttributes(
			attribute.String("shop.order_id", req.OrderID),
			attribute.String("shop.gateway_order_id", req.GatewayOrderID),
		),
	)
	defer func() {
		if rerr != nil && !errors.Is(rerr, ErrAlreadyVerified) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "verification failed")
		}
		span.End()
	}()

	if req.OrderID == "" || req.GatewayOrderID == "" || req.GatewayPaymentID == "" {
		s.count(ctx, "invalid")
		return nil, ErrInvalidCallback
	}

	if !ValidSignature(s.secret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.count(ctx, "signature_mismatch")
		s.lg.Warn("Payment signature mismatch",
			zap.Bool("security", true),
			zap.String("order_id", req.OrderID),
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
		)
		s.recordMismatch(ctx, req)
		return nil, ErrSignatureMismatch
	}

	var (
		res          *VerificationResult
		o            *order.Order
		anomaly      error
		anomalyNotes string
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.lockOrder(ctx, req.OrderID, req.GatewayOrderID)
		if err != nil {
			return err
		}

		if _, err := s.payments.FindCompleted(ctx, req.GatewayOrderID, req.GatewayPaymentID); err == nil {
			return ErrAlreadyVerified
		} else if !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "find payment")
		}

		now := s.now().UTC()
		p := &Payment{
			ID:               uuid.New().String(),
			OrderID:          o.ID,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        strings.ToLower(req.Signature),
			Status:           StatusCompleted,
			CreatedAt:        now,
		}

		// A valid capture for an order that cannot take it must not be
		// lost: record it and leave the order for manual review.
		switch {
		case o.Paid():
			anomaly = ErrAlreadyVerified
			anomalyNotes = "additional payment " + req.GatewayPaymentID + " captured for an already paid order"
		case o.Status != order.StatusPending && o.Status != order.StatusPaymentFailed:
			anomaly = ErrOrderNotPayable
			anomalyNotes = "payment " + req.GatewayPaymentID + " captured for " + string(o.Status) + " order"
		}
		if anomaly != nil {
			if err := s.insertPayment(ctx, p); err != nil {
				return err
			}
			return s.orders.FlagForReconciliation(ctx, o.ID, anomalyNotes, now)
		}

		if err := s.insertPayment(ctx, p); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusProcessing, order.PaymentCompleted, now); err != nil {
			return errors.Wrap(err, "update order status")
		}
		o.Status, o.PaymentStatus, o.UpdatedAt = order.StatusProcessing, order.PaymentCompleted, now

		report, err := s.inventory.ApplyOrder(ctx, o)
		if err != nil {
			return errors.Wrap(err, "apply inventory")
		}
		if err := s.carts.Clear(ctx, o.OwnerID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		res = &VerificationResult{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			PaymentID:     p.ID,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			Inventory:     report,
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrAlreadyVerified):
		s.count(ctx, "already_verified")
		s.lg.Info("Payment callback replayed",
			zap.String("order_id", req.OrderID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
		)
		return nil, err
	case err != nil:
		s.count(ctx, "error")
		return nil, err
	case anomaly != nil:
		s.count(ctx, "needs_reconciliation")
		s.lg.Warn("Payment captured for an order that cannot accept it",
			zap.String("order_id", o.ID),
			zap.String("notes", anomalyNotes),
		)
		return nil, anomaly
	}

	s.count(ctx, "verified")
	s.lg.Info("Payment verified",
		zap.String("order_id", res.OrderID),
		zap.String("order_number", res.OrderNumber),
		zap.String("payment_id", res.PaymentID),
		zap.Bool("needs_reconciliation", res.Inventory.Flagged()),
	)

	events := []event.Event{event.New(event.PaymentVerified, o.ID, o.OwnerID, o.UpdatedAt, map[string]string{
		"order_number":       o.Number,
		"gateway_payment_id": req.GatewayPaymentID,
		"grand_total":        o.GrandTotal.StringFixed(2),
	})}
	if res.Inventory.Flagged() {
		events = append(events, event.New(event.InventoryShortage, o.ID, o.OwnerID, o.UpdatedAt, map[string]string{
			"details": res.Inventory.Err().Error(),
		}))
	}
	event.Emit(ctx, s.events, s.lg, events...)
	return res, nil
}

// ReportFailure records a payment failure reported by the gateway. The order
// stays resumable: its status is kept and only the payment status changes.
// Reports for orders that are already paid are ignored.
func (s *Service) ReportFailure(ctx context.Context, r FailureReport) error {
	if r.OrderID == "" || r.GatewayOrderID == "" {
		return ErrInvalidCallback
	}
	recorded, o, err := s.recordFailure(ctx, r.OrderID, r.GatewayOrderID, r.GatewayPaymentID, "", r.Reason)
	if err != nil {
		return err
	}
	if !recorded {
		s.lg.Info("Ignoring failure report for paid order", zap.String("order_id", r.OrderID))
		return nil
	}
	s.lg.Info("Payment failed",
		zap.String("order_id", o.ID),
		zap.String("reason", r.Reason),
	)
	event.Emit(ctx, s.events, s.lg, event.New(event.PaymentFailed, o.ID, o.OwnerID, o.UpdatedAt, map[string]string{
		"reason": r.Reason,
	}))
	return nil
}

// recordMismatch stores a rejected callback against its order when the order
// is known. Failures here are logged; the caller reports the mismatch anyway.
func (s *Service) recordMismatch(ctx context.Context, req VerifyRequest) {
	recorded, o, err := s.recordFailure(ctx, req.OrderID, req.GatewayOrderID, req.GatewayPaymentID, req.Signature, "signature mismatch")
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			s.lg.Error("Failed to record rejected payment", zap.Error(err), zap.String("order_id", req.OrderID))
		}
		return
	}
	if recorded {
		event.Emit(ctx, s.events, s.lg, event.New(event.PaymentFailed, o.ID, o.OwnerID, o.UpdatedAt, map[string]string{
			"reason": "signature mismatch",
		}))
	}
}

func (s *Service) recordFailure(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID, signature, reason string) (bool, *order.Order, error) {
	var (
		recorded bool
		o        *order.Order
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.lockOrder(ctx, orderID, gatewayOrderID)
		if err != nil {
			return err
		}
		if o.Paid() || o.Status.Terminal() {
			return nil
		}
		now := s.now().UTC()
		if err := s.insertPayment(ctx, &Payment{
			ID:               uuid.New().String(),
			OrderID:          o.ID,
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: gatewayPaymentID,
			Signature:        signature,
			Status:           StatusFailed,
			FailureReason:    reason,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, order.PaymentFailed, now); err != nil {
			return errors.Wrap(err, "update payment status")
		}
		o.PaymentStatus, o.UpdatedAt = order.PaymentFailed, now
		recorded = true
		return nil
	})
	return recorded, o, err
}

// lockOrder loads and locks the order a callback refers to. An order that is
// not bound to gatewayOrderID, including one that never started payment, is
// treated as unknown.
func (s *Service) lockOrder(ctx context.Context, orderID, gatewayOrderID string) (*order.Order, error) {
	o, err := s.orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	if o.GatewayOrderID == "" || o.GatewayOrderID != gatewayOrderID {
		return nil, errors.Wrapf(order.ErrNotFound, "gateway order %s is not bound to order %s", gatewayOrderID, orderID)
	}
	return o, nil
}

func (s *Service) insertPayment(ctx context.Context, p *Payment) error {
	err := s.payments.Insert(ctx, p)
	if errors.Is(err, ErrDuplicatePayment) {
		return ErrAlreadyVerified
	}
	if err != nil {
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

// History returns the payment attempts of an order.
func (s *Service) History(ctx context.Context, orderID string) ([]Payment, error) {
	list, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return list, nil
}
