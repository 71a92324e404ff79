package currency

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Service provides business logic for the Currency catalog.
type Service struct {
	repo Repository
}

// NewService creates a new Currency service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new currency.
func (s *Service) Create(ctx context.Context, curr *Currency) error {
	if err := curr.Validate(ctx); err != nil {
		return err
	}

	if existing, err := s.repo.FindByISOCode(ctx, curr.ISOCode); err == nil && existing != nil {
		return apperror.NewConflict("currency with this ISO code already exists").
			WithDetail("isoCode", curr.ISOCode)
	}

	if err := s.repo.Create(ctx, curr); err != nil {
		return fmt.Errorf("create currency: %w", err)
	}

	logger.Info(ctx, "currency created", "id", curr.ID, "iso_code", curr.ISOCode)
	return nil
}

// AddRate appends an exchange rate row. Corrections are new rows with a
// later created_at; historical valuations are never touched.
func (s *Service) AddRate(ctx context.Context, currencyID id.ID, rate types.Money, effectiveAt time.Time) (*ExchangeRate, error) {
	curr, err := s.repo.GetByID(ctx, currencyID)
	if err != nil {
		return nil, err
	}
	if curr.IsBase {
		return nil, apperror.NewValidation("base currency has no exchange rate")
	}

	row := NewExchangeRate(currencyID, rate, effectiveAt)
	if err := row.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.repo.AddRate(ctx, row); err != nil {
		return nil, fmt.Errorf("add rate: %w", err)
	}

	logger.Info(ctx, "exchange rate added",
		"currency_id", currencyID,
		"rate", rate,
		"effective_at", effectiveAt,
	)
	return row, nil
}

// RateAt resolves the rate effective at or most recently before date.
func (s *Service) RateAt(ctx context.Context, currencyID id.ID, date time.Time) (*ExchangeRate, error) {
	return s.repo.RateAt(ctx, currencyID, date)
}

// GetBase returns the accounting currency.
func (s *Service) GetBase(ctx context.Context) (*Currency, error) {
	return s.repo.GetBase(ctx)
}

// List returns all currencies.
func (s *Service) List(ctx context.Context) ([]*Currency, error) {
	return s.repo.List(ctx)
}

// ListRates returns the rate history for one currency.
func (s *Service) ListRates(ctx context.Context, currencyID id.ID, limit int) ([]*ExchangeRate, error) {
	return s.repo.ListRates(ctx, currencyID, limit)
}
