package order

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/product"
)

// maxNumberAttempts bounds order number regeneration on collisions.
const maxNumberAttempts = 5

// Adjustment is the tax, shipping and discount applied on top of the item
// subtotal.
type Adjustment struct {
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
	CouponCode string
}

// AdjustFunc derives an Adjustment from the items as priced by the builder.
type AdjustFunc func(ctx context.Context, items []Item, subTotal decimal.Decimal) (Adjustment, error)

// BuildRequest carries everything needed to turn a cart into an order.
// Amounts are explicit unless Adjust is set, in which case Adjust replaces
// them with values computed from the built items.
type BuildRequest struct {
	OwnerID         string
	Lines           []cart.Line
	BillingAddress  account.Address
	ShippingAddress account.Address
	PaymentMethod   account.PaymentMethod
	ShippingAmount  decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	CouponCode      string
	Currency        string
	Adjust          AdjustFunc
}

// Builder creates orders. It has no inventory or cart side effects: both
// happen only once payment is confirmed.
type Builder struct {
	products product.Repository
	orders   Repository
	currency string
	lg       *zap.Logger

	now       func() time.Time
	newNumber func(time.Time) string
}

// NewBuilder creates a Builder. currency is used when a request leaves it empty.
func NewBuilder(products product.Repository, orders Repository, currency string, lg *zap.Logger) *Builder {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Builder{
		products:  products,
		orders:    orders,
		currency:  currency,
		lg:        lg,
		now:       time.Now,
		newNumber: NewNumber,
	}
}

// NewNumber returns a human-readable order number such as
// ORD-20250615-7ZK1M4Q9XC. The tail is the random part of a ULID.
func NewNumber(at time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
	return "ORD-" + at.UTC().Format("20060102") + "-" + id[len(id)-10:]
}

type itemSnapshot struct {
	Product product.Product  `json:"product"`
	Variant *product.Variant `json:"variant,omitempty"`
}

// Build prices the lines at the current time, snapshots the catalog data and
// stores a pending order.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if err := checkAmounts(req.TaxAmount, req.ShippingAmount, req.DiscountAmount); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, cart.ErrInvalidQuantity
		}
		ids = append(ids, l.ProductID)
	}
	fetched, err := b.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	now := b.now().UTC()
	items := make([]Item, 0, len(req.Lines))
	subTotal := decimal.Zero
	for _, l := range req.Lines {
		item, err := buildItem(byID, l, now)
		if err != nil {
			return nil, err
		}
		subTotal = subTotal.Add(item.LineTotal)
		items = append(items, item)
	}
	subTotal = subTotal.Round(2)

	if req.Adjust != nil {
		adj, err := req.Adjust(ctx, items, subTotal)
		if err != nil {
			return nil, err
		}
		if err := checkAmounts(adj.Tax, adj.Shipping, adj.Discount); err != nil {
			return nil, err
		}
		req.TaxAmount, req.ShippingAmount, req.DiscountAmount = adj.Tax, adj.Shipping, adj.Discount
		req.CouponCode = adj.CouponCode
	}

	tax := req.TaxAmount.Round(2)
	shipping := req.ShippingAmount.Round(2)
	discount := req.DiscountAmount.Round(2)
	grand := subTotal.Add(tax).Add(shipping).Sub(discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	currency := req.Currency
	if currency == "" {
		currency = b.currency
	}

	o := &Order{
		ID:              uuid.New().String(),
		OwnerID:         req.OwnerID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		SubTotal:        subTotal,
		TaxAmount:       tax,
		ShippingAmount:  shipping,
		DiscountAmount:  discount,
		GrandTotal:      grand.Round(2),
		Currency:        strings.ToUpper(currency),
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		o.Number = b.newNumber(now)
		err := b.orders.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return nil, errors.Wrap(err, "create order")
		}
		b.lg.Warn("Order number collision, regenerating",
			zap.String("order_number", o.Number),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrOrderNumberExhausted
}

func checkAmounts(amounts ...decimal.Decimal) error {
	for _, amount := range amounts {
		if amount.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return nil
}

func buildItem(products map[string]*product.Product, l cart.Line, now time.Time) (Item, error) {
	p, ok := products[l.ProductID]
	if !ok {
		return Item{}, errors.Wrapf(ErrItemUnavailable, "product %s", l.ProductID)
	}

	var v *product.Variant
	if l.VariantID != "" {
		found, ok := p.Variant(l.VariantID)
		if !ok {
			return Item{}, errors.Wrapf(ErrItemUnavailable, "variant %s", l.VariantID)
		}
		cp := *found
		v = &cp
	}

	unit := product.ResolvePrice(*p, v, now).Round(2)

	snap := itemSnapshot{Product: *p, Variant: v}
	snap.Product.Variants = nil
	raw, err := json.Marshal(snap)
	if err != nil {
		return Item{}, errors.Wrap(err, "marshal item snapshot")
	}

	item := Item{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: unit,
		Quantity:  l.Quantity,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
		Snapshot:  raw,
	}
	if v != nil {
		item.VariantID = v.ID
		item.SKU = v.SKU
		item.Name = p.Name + " (" + v.Name + ")"
	}
	return item, nil
}
