package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/internal/domain/defaultset"
)

// maxSaveAttempts bounds the optimistic read-modify-write loop.
const maxSaveAttempts = 3

// ErrInvalidVariant is returned for variants without a name or SKU, or with a
// negative price or inventory.
var ErrInvalidVariant = apperr.New(apperr.InvalidArgument, "variant needs a name, a SKU and non-negative price and stock")

// VariantService manages the variant list of a product. All default flag
// changes go through the defaultset package.
type VariantService struct {
	repo VariantRepository
	lg   *zap.Logger
}

// NewVariantService creates a VariantService backed by repo.
func NewVariantService(repo VariantRepository, lg *zap.Logger) *VariantService {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &VariantService{repo: repo, lg: lg}
}

// List returns the variants of a product.
func (s *VariantService) List(ctx context.Context, productID string) ([]Variant, error) {
	variants, _, err := s.repo.LoadVariants(ctx, productID)
	return variants, err
}

// Add creates a variant. The first variant of a product becomes its default.
func (s *VariantService) Add(ctx context.Context, productID string, v Variant) (Variant, error) {
	if err := validateVariant(v); err != nil {
		return Variant{}, err
	}
	v.ID = uuid.New().String()
	v.ProductID = productID

	var added Variant
	err := s.mutate(ctx, productID, func(current []Variant) ([]Variant, error) {
		if err := uniqueSKU(current, v); err != nil {
			return nil, err
		}
		next := defaultset.Add(current, v)
		added = next[len(next)-1]
		return next, nil
	})
	if err != nil {
		return Variant{}, err
	}
	return added, nil
}

// Update replaces the mutable fields of a variant.
func (s *VariantService) Update(ctx context.Context, productID string, v Variant) (Variant, error) {
	if err := validateVariant(v); err != nil {
		return Variant{}, err
	}
	v.ProductID = productID

	var updated Variant
	err := s.mutate(ctx, productID, func(current []Variant) ([]Variant, error) {
		if err := uniqueSKU(current, v); err != nil {
			return nil, err
		}
		next, err := defaultset.Update(current, v)
		if err != nil {
			return nil, errors.Wrap(ErrVariantNotFound, err.Error())
		}
		updated, _ = defaultset.Find(next, v.ID)
		return next, nil
	})
	if err != nil {
		return Variant{}, err
	}
	return updated, nil
}

// Remove deletes a variant, promoting another one when it was the default.
func (s *VariantService) Remove(ctx context.Context, productID, variantID string) error {
	return s.mutate(ctx, productID, func(current []Variant) ([]Variant, error) {
		next, err := defaultset.Remove(current, variantID)
		if err != nil {
			return nil, errors.Wrap(ErrVariantNotFound, err.Error())
		}
		return next, nil
	})
}

// SetDefault makes variantID the default variant of the product.
func (s *VariantService) SetDefault(ctx context.Context, productID, variantID string) error {
	return s.mutate(ctx, productID, func(current []Variant) ([]Variant, error) {
		next, err := defaultset.SetDefault(current, variantID)
		if err != nil {
			return nil, errors.Wrap(ErrVariantNotFound, err.Error())
		}
		return next, nil
	})
}

// uniqueSKU rejects v when another variant of the product already uses its
// SKU, ignoring case.
func uniqueSKU(current []Variant, v Variant) error {
	for _, existing := range current {
		if existing.ID != v.ID && strings.EqualFold(existing.SKU, v.SKU) {
			return errors.Wrapf(ErrInvalidVariant, "duplicate sku %q", v.SKU)
		}
	}
	return nil
}

func (s *VariantService) mutate(ctx context.Context, productID string, fn func([]Variant) ([]Variant, error)) error {
	for attempt := 1; ; attempt++ {
		current, version, err := s.repo.LoadVariants(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "load variants")
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		err = s.repo.SaveVariants(ctx, productID, next, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= maxSaveAttempts {
			return errors.Wrap(err, "save variants")
		}
		s.lg.Debug("Variant list changed concurrently, retrying",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt),
		)
	}
}

func validateVariant(v Variant) error {
	if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.SKU) == "" {
		return ErrInvalidVariant
	}
	if v.Inventory < 0 || (v.Price.Valid && v.Price.Decimal.IsNegative()) {
		return ErrInvalidVariant
	}
	return nil
}
