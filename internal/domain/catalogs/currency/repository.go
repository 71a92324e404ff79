package currency

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Repository defines persistence operations for currencies and rates.
type Repository interface {
	Create(ctx context.Context, curr *Currency) error
	GetByID(ctx context.Context, currID id.ID) (*Currency, error)
	FindByISOCode(ctx context.Context, isoCode string) (*Currency, error)
	GetBase(ctx context.Context) (*Currency, error)
	List(ctx context.Context) ([]*Currency, error)

	// AddRate appends a rate row. Rates are never updated or deleted.
	AddRate(ctx context.Context, rate *ExchangeRate) error

	// RateAt returns the rate effective at or most recently before date.
	// Returns apperror.NewNotFound when no rate precedes the date.
	RateAt(ctx context.Context, currencyID id.ID, date time.Time) (*ExchangeRate, error)

	// ListRates returns the rate history for a currency, newest first.
	ListRates(ctx context.Context, currencyID id.ID, limit int) ([]*ExchangeRate, error)
}
