// Package checkout turns a shopper's cart into a pending order and opens a
// gateway payment for it.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/event"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/tx"
)

var (
	// ErrNothingToPay is returned when starting payment for a zero total.
	ErrNothingToPay = apperr.New(apperr.InvalidArgument, "order total is zero, nothing to pay")
	// ErrNoAddress is returned when no address was given and none is saved.
	ErrNoAddress = apperr.New(apperr.InvalidArgument, "add a shipping address before placing the order")
)

// PlaceOrderRequest selects saved addresses and a payment method by id.
// Empty ids fall back to the owner's defaults; an empty billing address
// reuses the shipping address.
type PlaceOrderRequest struct {
	OwnerID           string
	ShippingAddressID string
	BillingAddressID  string
	PaymentMethodID   string
	CouponCode        string
}

// PaymentSession is what the client needs to open the gateway checkout.
type PaymentSession struct {
	OrderID        string
	OrderNumber    string
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
	KeyID          string
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Carts    *cart.Service
	Accounts *account.Service
	Coupons  coupon.Validator
	Builder  *order.Builder
	Orders   order.Repository
	Gateway  payment.Gateway
	Tx       tx.Transactor
	Events   event.Publisher
}

// Service orchestrates checkout.
type Service struct {
	Deps
	charges      order.Charges
	gatewayKeyID string
	lg           *zap.Logger
	now          func() time.Time
}

// NewService creates a checkout Service.
func NewService(deps Deps, charges order.Charges, gatewayKeyID string, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	if deps.Tx == nil {
		deps.Tx = tx.None
	}
	return &Service{
		Deps:         deps,
		charges:      charges,
		gatewayKeyID: gatewayKeyID,
		lg:           lg,
		now:          time.Now,
	}
}

// adjust redeems the coupon and derives tax and shipping from the prices the
// order is built with.
func (s *Service) adjust(code string) order.AdjustFunc {
	return func(ctx context.Context, items []order.Item, subTotal decimal.Decimal) (order.Adjustment, error) {
		var adj order.Adjustment
		if code != "" {
			couponItems := make([]coupon.Item, 0, len(items))
			for _, it := range items {
				couponItems = append(couponItems, coupon.Item{
					ProductID: it.ProductID,
					Price:     it.UnitPrice,
					Quantity:  it.Quantity,
				})
			}
			d, err := s.Coupons.Redeem(ctx, code, couponItems)
			if err != nil {
				return adj, errors.Wrap(err, "redeem coupon")
			}
			adj.Discount, adj.CouponCode = d.Amount, d.Code
		}
		adj.Tax, adj.Shipping = s.charges.Compute(subTotal, adj.Discount)
		return adj, nil
	}
}

// PlaceOrder builds a pending order from the owner's cart. The cart is kept
// until payment is verified, and a coupon use is consumed in the same
// transaction that stores the order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	priced, err := s.Carts.Read(ctx, req.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(priced.Items) == 0 {
		return nil, order.ErrEmptyCart
	}
	lines := make([]cart.Line, 0, len(priced.Items))
	for _, it := range priced.Items {
		if !it.Available {
			return nil, errors.Wrapf(order.ErrItemUnavailable, "product %s", it.ProductID)
		}
		lines = append(lines, it.Line)
	}

	shipping, err := s.address(ctx, req.OwnerID, req.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	billing := shipping
	if req.BillingAddressID != "" {
		if billing, err = s.address(ctx, req.OwnerID, req.BillingAddressID); err != nil {
			return nil, err
		}
	}
	method, err := s.paymentMethod(ctx, req.OwnerID, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	var o *order.Order
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Builder.Build(ctx, order.BuildRequest{
			OwnerID:         req.OwnerID,
			Lines:           lines,
			BillingAddress:  *billing,
			ShippingAddress: *shipping,
			PaymentMethod:   method,
			Adjust:          s.adjust(req.CouponCode),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("grand_total", o.GrandTotal.StringFixed(2)),
	)
	event.Emit(ctx, s.Events, s.lg, event.New(event.OrderCreated, o.ID, o.OwnerID, o.CreatedAt, map[string]string{
		"order_number": o.Number,
		"grand_total":  o.GrandTotal.StringFixed(2),
		"currency":     o.Currency,
	}))
	return o, nil
}

// StartPayment opens, or reopens, the gateway order for a pending order.
// A gateway order is created once per order and reused on retries, so that
// late callbacks for earlier attempts still match.
func (s *Service) StartPayment(ctx context.Context, ownerID, orderID string) (*PaymentSession, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.OwnerID != ownerID {
		return nil, order.ErrNotFound
	}
	if o.Paid() || o.Status.Terminal() {
		return nil, payment.ErrOrderNotPayable
	}
	if !o.GrandTotal.IsPositive() {
		return nil, ErrNothingToPay
	}

	session := &PaymentSession{
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		GatewayOrderID: o.GatewayOrderID,
		AmountMinor:    MinorUnits(o.GrandTotal),
		Currency:       o.Currency,
		KeyID:          s.gatewayKeyID,
	}
	if o.GatewayOrderID != "" {
		return session, nil
	}

	gw, err := s.Gateway.CreateOrder(ctx, payment.GatewayOrderRequest{
		Amount:   o.GrandTotal,
		Currency: o.Currency,
		Receipt:  o.Number,
		Notes:    map[string]string{"order_id": o.ID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway order")
	}
	err = s.Orders.SetGatewayOrder(ctx, o.ID, gw.ID, s.now().UTC())
	if errors.Is(err, order.ErrGatewayOrderBound) {
		// A concurrent request won; hand out its gateway order.
		current, err := s.Orders.Get(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "get order")
		}
		session.GatewayOrderID = current.GatewayOrderID
		return session, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store gateway order")
	}
	session.GatewayOrderID = gw.ID
	if gw.KeyID != "" {
		session.KeyID = gw.KeyID
	}
	s.lg.Info("Payment started",
		zap.String("order_id", o.ID),
		zap.String("gateway_order_id", gw.ID),
	)
	return session, nil
}

// MinorUnits converts an amount to the currency's minor unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (s *Service) address(ctx context.Context, ownerID, id string) (*account.Address, error) {
	if id != "" {
		return s.Accounts.Address(ctx, ownerID, id)
	}
	a, err := s.Accounts.DefaultAddress(ctx, ownerID)
	if errors.Is(err, account.ErrAddressNotFound) {
		return nil, ErrNoAddress
	}
	return a, err
}

// paymentMethod resolves the chosen method. Without a choice and without a
// saved default, the order carries no method and the shopper picks one at
// the gateway.
func (s *Service) paymentMethod(ctx context.Context, ownerID, id string) (account.PaymentMethod, error) {
	if id != "" {
		m, err := s.Accounts.PaymentMethod(ctx, ownerID, id)
		if err != nil {
			return account.PaymentMethod{}, err
		}
		return *m, nil
	}
	methods, err := s.Accounts.PaymentMethods(ctx, ownerID)
	if err != nil {
		return account.PaymentMethod{}, err
	}
	for _, m := range methods {
		if m.IsDefault {
			return m, nil
		}
	}
	return account.PaymentMethod{}, nil
}
