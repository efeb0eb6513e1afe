// Package inventory applies paid orders to live stock.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/domain/tx"
)

var (
	// ErrInsufficientInventory describes a paid order that could not be fully
	// covered by stock. It is reported, never returned from ApplyOrder.
	ErrInsufficientInventory = apperr.New(apperr.InsufficientInventory, "insufficient inventory")
	// ErrInvalidRestock is returned for a zero restock quantity.
	ErrInvalidRestock = apperr.New(apperr.InvalidArgument, "restock quantity must not be zero")
)

// Shortage is one order item that stock could not cover.
type Shortage struct {
	ProductID string
	VariantID string
	SKU       string
	Requested int
	Available int
	// Missing is set when the product or variant no longer exists.
	Missing bool
}

func (s Shortage) String() string {
	if s.Missing {
		return fmt.Sprintf("%s: %d requested, item no longer exists", s.SKU, s.Requested)
	}
	return fmt.Sprintf("%s: %d requested, %d available", s.SKU, s.Requested, s.Available)
}

// Report summarizes an inventory adjustment.
type Report struct {
	OrderID   string
	Shortages []Shortage
}

// Flagged reports whether the order needs manual reconciliation.
func (r Report) Flagged() bool { return len(r.Shortages) > 0 }

// Err returns ErrInsufficientInventory with details when flagged.
func (r Report) Err() error {
	if !r.Flagged() {
		return nil
	}
	return errors.Wrap(ErrInsufficientInventory, r.notes())
}

func (r Report) notes() string {
	parts := make([]string, len(r.Shortages))
	for i, s := range r.Shortages {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

// Adjuster decrements stock for paid orders.
type Adjuster struct {
	stock  product.StockRepository
	orders order.Repository
	tx     tx.Transactor
	lg     *zap.Logger
	now    func() time.Time
}

// NewAdjuster creates an Adjuster.
func NewAdjuster(stock product.StockRepository, orders order.Repository, transactor tx.Transactor, lg *zap.Logger) *Adjuster {
	if lg == nil {
		lg = zap.NewNop()
	}
	if transactor == nil {
		transactor = tx.None
	}
	return &Adjuster{stock: stock, orders: orders, tx: transactor, lg: lg, now: time.Now}
}

// ApplyOrder decrements inventory by the quantities captured in the order.
// It must run inside the transaction that records the payment.
//
// Stock never goes below zero. Items that cannot be covered are collected in
// the report and the order is flagged for reconciliation; the payment has
// already been captured, so shortages are not errors.
func (a *Adjuster) ApplyOrder(ctx context.Context, o *order.Order) (Report, error) {
	report := Report{OrderID: o.ID}

	byProduct := make(map[string][]order.Item)
	for _, it := range o.Items {
		byProduct[it.ProductID] = append(byProduct[it.ProductID], it)
	}
	ids := make([]string, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	// A stable lock order keeps concurrent adjustments from deadlocking.
	sort.Strings(ids)

	for _, id := range ids {
		items := byProduct[id]
		p, err := a.stock.GetForUpdate(ctx, id)
		if errors.Is(err, product.ErrNotFound) {
			for _, it := range items {
				report.Shortages = append(report.Shortages, Shortage{
					ProductID: it.ProductID, VariantID: it.VariantID, SKU: it.SKU,
					Requested: it.Quantity, Missing: true,
				})
			}
			continue
		}
		if err != nil {
			return Report{}, errors.Wrapf(err, "lock product %s", id)
		}

		for _, it := range items {
			stock := &p.Inventory
			if it.VariantID != "" {
				v, ok := p.Variant(it.VariantID)
				if !ok {
					report.Shortages = append(report.Shortages, Shortage{
						ProductID: it.ProductID, VariantID: it.VariantID, SKU: it.SKU,
						Requested: it.Quantity, Missing: true,
					})
					continue
				}
				stock = &v.Inventory
			}
			if *stock < it.Quantity {
				report.Shortages = append(report.Shortages, Shortage{
					ProductID: it.ProductID, VariantID: it.VariantID, SKU: it.SKU,
					Requested: it.Quantity, Available: *stock,
				})
				*stock = 0
				continue
			}
			*stock -= it.Quantity
		}

		if err := a.stock.UpdateStock(ctx, p.ID, p.Inventory, p.Variants); err != nil {
			return Report{}, errors.Wrapf(err, "update stock %s", id)
		}
	}

	if report.Flagged() {
		a.lg.Warn("Paid order exceeds available inventory, flagged for reconciliation",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.Int("shortages", len(report.Shortages)),
			zap.Error(report.Err()),
		)
		if err := a.orders.FlagForReconciliation(ctx, o.ID, report.notes(), a.now().UTC()); err != nil {
			return Report{}, errors.Wrap(err, "flag order")
		}
	}
	return report, nil
}

// Restock adds quantity units to the product or variant with the given SKU.
// Negative quantities remove stock, clamping at zero.
func (a *Adjuster) Restock(ctx context.Context, sku string, quantity int) error {
	if quantity == 0 {
		return ErrInvalidRestock
	}
	return a.tx.InTx(ctx, func(ctx context.Context) error {
		productID, variantID, err := a.stock.FindBySKU(ctx, sku)
		if err != nil {
			return errors.Wrapf(err, "find sku %q", sku)
		}
		p, err := a.stock.GetForUpdate(ctx, productID)
		if err != nil {
			return errors.Wrapf(err, "lock product %s", productID)
		}

		stock := &p.Inventory
		if variantID != "" {
			v, ok := p.Variant(variantID)
			if !ok {
				return product.ErrVariantNotFound
			}
			stock = &v.Inventory
		}
		*stock = max(*stock+quantity, 0)

		return a.stock.UpdateStock(ctx, p.ID, p.Inventory, p.Variants)
	})
}
