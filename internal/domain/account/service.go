package account

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/defaultset"
)

const maxSaveAttempts = 3

// Service mutates address books and payment method lists. Every change to a
// default flag goes through the defaultset package so that each non-empty
// collection has exactly one default.
type Service struct {
	repo Repository
	lg   *zap.Logger
}

// NewService creates an account Service.
func NewService(repo Repository, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{repo: repo, lg: lg}
}

// Addresses lists the saved addresses of owner.
func (s *Service) Addresses(ctx context.Context, ownerID string) ([]Address, error) {
	p, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}
	return p.Addresses, nil
}

// Address returns one address of owner.
func (s *Service) Address(ctx context.Context, ownerID, id string) (*Address, error) {
	list, err := s.Addresses(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	a, ok := defaultset.Find(list, id)
	if !ok {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

// DefaultAddress returns the default address, if owner has any.
func (s *Service) DefaultAddress(ctx context.Context, ownerID string) (*Address, error) {
	list, err := s.Addresses(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	a, ok := defaultset.Default(list)
	if !ok {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

// AddAddress saves a new address. The first address becomes the default.
func (s *Service) AddAddress(ctx context.Context, ownerID string, a Address) (Address, error) {
	if err := validateAddress(a); err != nil {
		return Address{}, err
	}
	a.ID = uuid.New().String()

	var added Address
	err := s.mutate(ctx, ownerID, func(p *Profile) error {
		p.Addresses = defaultset.Add(p.Addresses, a)
		added = p.Addresses[len(p.Addresses)-1]
		return nil
	})
	return added, err
}

// UpdateAddress replaces an address. Passing IsDefault moves the default to it.
func (s *Service) UpdateAddress(ctx context.Context, ownerID string, a Address) (Address, error) {
	if err := validateAddress(a); err != nil {
		return Address{}, err
	}

	var updated Address
	err := s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.Update(p.Addresses, a)
		if err != nil {
			return ErrAddressNotFound
		}
		p.Addresses = next
		updated, _ = defaultset.Find(next, a.ID)
		return nil
	})
	return updated, err
}

// RemoveAddress deletes an address.
func (s *Service) RemoveAddress(ctx context.Context, ownerID, id string) error {
	return s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.Remove(p.Addresses, id)
		if err != nil {
			return ErrAddressNotFound
		}
		p.Addresses = next
		return nil
	})
}

// SetDefaultAddress makes id the default address.
func (s *Service) SetDefaultAddress(ctx context.Context, ownerID, id string) error {
	return s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.SetDefault(p.Addresses, id)
		if err != nil {
			return ErrAddressNotFound
		}
		p.Addresses = next
		return nil
	})
}

// PaymentMethods lists the saved payment methods of owner.
func (s *Service) PaymentMethods(ctx context.Context, ownerID string) ([]PaymentMethod, error) {
	p, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}
	return p.PaymentMethods, nil
}

// PaymentMethod returns one payment method of owner.
func (s *Service) PaymentMethod(ctx context.Context, ownerID, id string) (*PaymentMethod, error) {
	list, err := s.PaymentMethods(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	m, ok := defaultset.Find(list, id)
	if !ok {
		return nil, ErrPaymentMethodNotFound
	}
	return &m, nil
}

// AddPaymentMethod saves a new payment method.
func (s *Service) AddPaymentMethod(ctx context.Context, ownerID string, m PaymentMethod) (PaymentMethod, error) {
	if err := validatePaymentMethod(m); err != nil {
		return PaymentMethod{}, err
	}
	m.ID = uuid.New().String()

	var added PaymentMethod
	err := s.mutate(ctx, ownerID, func(p *Profile) error {
		p.PaymentMethods = defaultset.Add(p.PaymentMethods, m)
		added = p.PaymentMethods[len(p.PaymentMethods)-1]
		return nil
	})
	return added, err
}

// UpdatePaymentMethod replaces a payment method.
func (s *Service) UpdatePaymentMethod(ctx context.Context, ownerID string, m PaymentMethod) (PaymentMethod, error) {
	if err := validatePaymentMethod(m); err != nil {
		return PaymentMethod{}, err
	}

	var updated PaymentMethod
	err := s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.Update(p.PaymentMethods, m)
		if err != nil {
			return ErrPaymentMethodNotFound
		}
		p.PaymentMethods = next
		updated, _ = defaultset.Find(next, m.ID)
		return nil
	})
	return updated, err
}

// RemovePaymentMethod deletes a payment method.
func (s *Service) RemovePaymentMethod(ctx context.Context, ownerID, id string) error {
	return s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.Remove(p.PaymentMethods, id)
		if err != nil {
			return ErrPaymentMethodNotFound
		}
		p.PaymentMethods = next
		return nil
	})
}

// SetDefaultPaymentMethod makes id the default payment method.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, ownerID, id string) error {
	return s.mutate(ctx, ownerID, func(p *Profile) error {
		next, err := defaultset.SetDefault(p.PaymentMethods, id)
		if err != nil {
			return ErrPaymentMethodNotFound
		}
		p.PaymentMethods = next
		return nil
	})
}

// mutate runs a read-modify-write cycle on the profile, retrying when another
// writer saved first.
func (s *Service) mutate(ctx context.Context, ownerID string, fn func(*Profile) error) error {
	for attempt := 1; ; attempt++ {
		p, err := s.repo.Load(ctx, ownerID)
		if err != nil {
			return errors.Wrap(err, "load profile")
		}
		version := p.Version
		if err := fn(p); err != nil {
			return err
		}
		err = s.repo.Save(ctx, p, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= maxSaveAttempts {
			return errors.Wrap(err, "save profile")
		}
		s.lg.Debug("Profile changed concurrently, retrying",
			zap.String("owner_id", ownerID),
			zap.Int("attempt", attempt),
		)
	}
}

func validateAddress(a Address) error {
	for _, f := range []string{a.FullName, a.Line1, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(f) == "" {
			return ErrInvalidAddress
		}
	}
	return nil
}

func validatePaymentMethod(m PaymentMethod) error {
	if !m.Kind.Valid() || strings.TrimSpace(m.Label) == "" {
		return ErrInvalidPaymentMethod
	}
	if m.Last4 != "" && len(m.Last4) != 4 {
		return errors.Wrap(ErrInvalidPaymentMethod, "last4 must have 4 digits")
	}
	if m.ExpMonth < 0 || m.ExpMonth > 12 {
		return errors.Wrap(ErrInvalidPaymentMethod, "expiry month out of range")
	}
	return nil
}
