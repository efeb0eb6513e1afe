// Package seed loads the demo catalog into a storage backend.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/db"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/defaultset"
	"github.com/xenking/shop-core/internal/domain/product"
)

type couponJSON struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	MinItems     int             `json:"min_items"`
	Description  string          `json:"description"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until"`
	MaxUses      int             `json:"max_uses"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
}

type catalogJSON struct {
	Products []product.Product `json:"products"`
	Coupons  []couponJSON      `json:"coupons"`
}

// Catalog is a parsed seed file.
type Catalog struct {
	Products []product.Product
	Coupons  []coupon.Rule
}

// Load parses a seed file. Variant lists are checked for a single default.
func Load(data []byte) (*Catalog, error) {
	var raw catalogJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	c := &Catalog{Products: raw.Products}
	for i := range c.Products {
		p := &c.Products[i]
		if p.ID == "" || p.SKU == "" {
			return nil, errors.Errorf("product %d: id and sku are required", i)
		}
		for j := range p.Variants {
			p.Variants[j].ProductID = p.ID
		}
		if err := defaultset.Check(p.Variants); err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID)
		}
	}
	for _, rc := range raw.Coupons {
		c.Coupons = append(c.Coupons, coupon.Rule{
			Code:         coupon.NormalizeCode(rc.Code),
			DiscountType: coupon.DiscountType(rc.DiscountType),
			Value:        rc.Value,
			MinItems:     rc.MinItems,
			Description:  rc.Description,
			ValidFrom:    rc.ValidFrom,
			ValidUntil:   rc.ValidUntil,
			MaxUses:      rc.MaxUses,
			MaxDiscount:  rc.MaxDiscount,
		})
	}
	return c, nil
}

// Default returns the embedded demo catalog.
func Default() (*Catalog, error) {
	return Load(db.Catalog)
}

// Sink receives seeded rows. Both storage backends satisfy it through their
// repositories' Put methods.
type Sink struct {
	Products interface {
		Put(ctx context.Context, p product.Product) error
	}
	Coupons interface {
		Put(ctx context.Context, r coupon.Rule) error
	}
	APIKeys interface {
		Put(ctx context.Context, k auth.APIKeyInfo) error
	}
}

// Apply upserts every product and coupon of c.
func (s Sink) Apply(ctx context.Context, c *Catalog) error {
	for _, p := range c.Products {
		if err := s.Products.Put(ctx, p); err != nil {
			return errors.Wrapf(err, "put product %s", p.ID)
		}
	}
	for _, r := range c.Coupons {
		if err := s.Coupons.Put(ctx, r); err != nil {
			return errors.Wrapf(err, "put coupon %s", r.Code)
		}
	}
	return nil
}

// Key describes an API key to provision. Raw is never stored.
type Key struct {
	ID     string
	Name   string
	Raw    string
	Scopes []string
}

// PutKeys stores the peppered hashes of keys.
func (s Sink) PutKeys(ctx context.Context, pepper []byte, keys ...Key) error {
	for _, k := range keys {
		if k.Raw == "" {
			continue
		}
		info := auth.APIKeyInfo{
			ID:      k.ID,
			Name:    k.Name,
			KeyHash: auth.HashKey(pepper, k.Raw),
			Scopes:  k.Scopes,
		}
		if err := s.APIKeys.Put(ctx, info); err != nil {
			return errors.Wrapf(err, "put api key %s", k.ID)
		}
	}
	return nil
}
