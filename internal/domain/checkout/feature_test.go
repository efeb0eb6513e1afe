package checkout

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
)

type checkoutFeature struct {
	t       *testing.T
	env     *env
	order   *order.Order
	session *PaymentSession
	err     error
}

func (f *checkoutFeature) reset() {
	f.env = newEnv(f.t)
	f.order, f.session, f.err = nil, nil, nil
}

func (f *checkoutFeature) aProductPricedWithStock(id, price string, stock int) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	return f.env.products.Put(context.Background(), product.Product{
		ID: id, Name: "Product " + id, SKU: "SKU-" + id, Price: p, Inventory: stock,
	})
}

func (f *checkoutFeature) theShopperHasASavedAddress(owner string) error {
	f.env.addAddress(f.t, owner)
	return nil
}

func (f *checkoutFeature) taxAndShipping(rate int, shipping string) error {
	s, err := decimal.NewFromString(shipping)
	if err != nil {
		return err
	}
	f.env.checkout.charges = order.Charges{TaxRate: decimal.NewFromInt(int64(rate)), FlatShipping: s}
	return nil
}

func (f *checkoutFeature) addsToTheCart(owner string, qty int, productID string) error {
	_, err := f.env.carts.AddItem(context.Background(), owner, productID, "", qty)
	return err
}

func (f *checkoutFeature) theCartHasLineWithQuantity(owner string, lines, qty int) error {
	c, err := f.env.carts.Read(context.Background(), owner)
	if err != nil {
		return err
	}
	if len(c.Items) != lines {
		return fmt.Errorf("expected %d lines, got %d", lines, len(c.Items))
	}
	if c.Items[0].Quantity != qty {
		return fmt.Errorf("expected quantity %d, got %d", qty, c.Items[0].Quantity)
	}
	return nil
}

func (f *checkoutFeature) theCartIsEmpty(owner string) error {
	c, err := f.env.carts.Read(context.Background(), owner)
	if err != nil {
		return err
	}
	if len(c.Items) != 0 {
		return fmt.Errorf("expected empty cart, got %d lines", len(c.Items))
	}
	return nil
}

func (f *checkoutFeature) placesAnOrder(owner string) error {
	o, err := f.env.checkout.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: owner})
	f.order = o
	return err
}

func (f *checkoutFeature) startsPayment(owner string) error {
	if f.order == nil {
		return errors.New("no order placed")
	}
	s, err := f.env.checkout.StartPayment(context.Background(), owner, f.order.ID)
	f.session = s
	return err
}

func (f *checkoutFeature) gatewayConfirms(paymentID, kind string) error {
	if f.session == nil {
		return errors.New("payment not started")
	}
	req := callback(f.session, paymentID)
	if kind == "tampered" {
		req.Signature = payment.Sign([]byte("wrong secret"), req.GatewayOrderID, paymentID)
	}
	_, f.err = f.env.payments.Verify(context.Background(), req)
	return nil
}

func (f *checkoutFeature) lastConfirmation(outcome string) error {
	want := payment.ErrAlreadyVerified
	if outcome == "rejected" {
		want = payment.ErrSignatureMismatch
	}
	if !errors.Is(f.err, want) {
		return fmt.Errorf("expected %v, got %v", want, f.err)
	}
	return nil
}

func (f *checkoutFeature) amountIs(field, amount string) error {
	if f.order == nil {
		return errors.New("no order placed")
	}
	got := f.order.SubTotal
	if field == "grand total" {
		got = f.order.GrandTotal
	}
	if got.StringFixed(2) != amount {
		return fmt.Errorf("expected %s %s, got %s", field, amount, got.StringFixed(2))
	}
	return nil
}

func (f *checkoutFeature) theOrderStatusIs(status, paymentStatus string) error {
	o, err := f.env.orders.Get(context.Background(), f.order.ID)
	if err != nil {
		return err
	}
	if string(o.Status) != status || string(o.PaymentStatus) != paymentStatus {
		return fmt.Errorf("expected %s/%s, got %s/%s", status, paymentStatus, o.Status, o.PaymentStatus)
	}
	return nil
}

func (f *checkoutFeature) hasInStock(productID string, stock int) error {
	if got := f.env.stock(f.t, productID); got != stock {
		return fmt.Errorf("expected %d in stock, got %d", stock, got)
	}
	return nil
}

func TestFeatures(t *testing.T) {
	f := &checkoutFeature{t: t}
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				f.reset()
				return ctx, nil
			})

			ctx.Step(`^a product "([^"]*)" priced ([\d.]+) with (\d+) in stock$`, f.aProductPricedWithStock)
			ctx.Step(`^the shopper "([^"]*)" has a saved address$`, f.theShopperHasASavedAddress)
			ctx.Step(`^tax is (\d+) percent and shipping is ([\d.]+)$`, f.taxAndShipping)

			ctx.Step(`^"([^"]*)" adds (\d+) of "([^"]*)" to the cart$`, f.addsToTheCart)
			ctx.Step(`^"([^"]*)" places an order$`, f.placesAnOrder)
			ctx.Step(`^"([^"]*)" starts payment$`, f.startsPayment)
			ctx.Step(`^the gateway confirms payment "([^"]*)" with a (valid|tampered) signature$`, f.gatewayConfirms)

			ctx.Step(`^the cart of "([^"]*)" has (\d+) line with quantity (\d+)$`, f.theCartHasLineWithQuantity)
			ctx.Step(`^the cart of "([^"]*)" is empty$`, f.theCartIsEmpty)
			ctx.Step(`^the order (subtotal|grand total) is ([\d.]+)$`, f.amountIs)
			ctx.Step(`^the order status is "([^"]*)" with payment "([^"]*)"$`, f.theOrderStatusIs)
			ctx.Step(`^"([^"]*)" has (\d+) in stock$`, f.hasInStock)
			ctx.Step(`^the last confirmation was (already verified|rejected)$`, f.lastConfirmation)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
