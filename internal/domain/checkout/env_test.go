package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/event"
	"github.com/xenking/shop-core/internal/domain/inventory"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/storage/memory"
)

var webhookSecret = []byte("whsec_test")

type fakeGateway struct {
	mu    sync.Mutex
	calls []payment.GatewayOrderRequest
	err   error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.GatewayOrderRequest) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, req)
	return &payment.GatewayOrder{
		ID:          fmt.Sprintf("gw_order_%d", len(g.calls)),
		AmountMinor: MinorUnits(req.Amount),
		Currency:    req.Currency,
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// env wires every service over one memory store.
type env struct {
	db       *memory.DB
	products *memory.ProductRepository
	orders   *memory.OrderRepository
	coupons  *memory.CouponRepository
	events   *event.Recorder
	gateway  *fakeGateway

	carts    *cart.Service
	accounts *account.Service
	checkout *Service
	payments *payment.Service
}

func newEnv(t testing.TB) *env {
	t.Helper()
	db := memory.New()
	e := &env{
		db:       db,
		products: memory.NewProductRepository(db),
		orders:   memory.NewOrderRepository(db),
		coupons:  memory.NewCouponRepository(db),
		events:   &event.Recorder{},
		gateway:  &fakeGateway{},
	}
	e.carts = cart.NewService(memory.NewCartRepository(db), e.products, nil)
	e.accounts = account.NewService(memory.NewProfileRepository(db), nil)
	e.checkout = NewService(Deps{
		Carts:    e.carts,
		Accounts: e.accounts,
		Coupons:  coupon.NewRepoValidator(e.coupons),
		Builder:  order.NewBuilder(e.products, e.orders, "inr", nil),
		Orders:   e.orders,
		Gateway:  e.gateway,
		Tx:       db,
		Events:   e.events,
	}, order.Charges{
		TaxRate:      decimal.NewFromInt(5),
		FlatShipping: decimal.NewFromInt(10),
	}, "key_test", nil)

	adjuster := inventory.NewAdjuster(e.products, e.orders, db, nil)
	var err error
	e.payments, err = payment.NewService(webhookSecret, e.orders, memory.NewPaymentRepository(db),
		adjuster, e.carts, db, e.events, nil)
	require.NoError(t, err)
	return e
}

func (e *env) addProduct(t testing.TB, p product.Product) {
	t.Helper()
	require.NoError(t, e.products.Put(context.Background(), p))
}

func (e *env) addAddress(t testing.TB, ownerID string) account.Address {
	t.Helper()
	a, err := e.accounts.AddAddress(context.Background(), ownerID, account.Address{
		FullName:   "Asha Rao",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		PostalCode: "560001",
		Country:    "IN",
	})
	require.NoError(t, err)
	return a
}

func (e *env) stock(t testing.TB, productID string) int {
	t.Helper()
	p, err := e.products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Inventory
}

// callback signs a capture the way the gateway does.
func callback(s *PaymentSession, paymentID string) payment.VerifyRequest {
	return payment.VerifyRequest{
		OrderID:          s.OrderID,
		GatewayOrderID:   s.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        payment.Sign(webhookSecret, s.GatewayOrderID, paymentID),
	}
}
