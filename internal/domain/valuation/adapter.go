// Package valuation converts movement amounts into the base currency and
// freezes the conversion as an immutable snapshot on the movement.
package valuation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/currency"
)

// RateSource resolves exchange rates and the base currency.
// currency.Service satisfies it.
type RateSource interface {
	RateAt(ctx context.Context, currencyID id.ID, date time.Time) (*currency.ExchangeRate, error)
	GetBase(ctx context.Context) (*currency.Currency, error)
}

// Snapshot is the frozen result of one conversion. It is copied onto the
// movement row and never recomputed, so later rate corrections do not
// change historical valuations.
type Snapshot struct {
	// AmountSource is the amount in the source currency
	AmountSource types.Money
	// AmountBase is the amount converted to the base currency
	AmountBase types.Money
	// ExchangeRate is the rate applied (1 for the base currency)
	ExchangeRate types.Money
	CurrencyID   id.ID
}

// Adapter prices amounts against the rate table.
type Adapter struct {
	rates RateSource
}

// NewAdapter creates a valuation adapter.
func NewAdapter(rates RateSource) *Adapter {
	return &Adapter{rates: rates}
}

// Price converts amount from the given currency into the base currency
// using the rate effective at (or most recently before) effectiveDate.
// The base currency converts at rate 1. A missing rate yields
// ValuationUnavailable; the caller decides whether that is fatal.
func (a *Adapter) Price(ctx context.Context, amount types.Money, currencyID id.ID, effectiveDate time.Time) (*Snapshot, error) {
	base, err := a.rates.GetBase(ctx)
	if err != nil {
		return nil, apperror.NewValuationUnavailable(currencyID.String(), effectiveDate.Format(time.DateOnly)).
			WithCause(err)
	}

	if currencyID == base.ID {
		return &Snapshot{
			AmountSource: amount,
			AmountBase:   amount,
			ExchangeRate: decimal.NewFromInt(1),
			CurrencyID:   currencyID,
		}, nil
	}

	rate, err := a.rates.RateAt(ctx, currencyID, effectiveDate)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewValuationUnavailable(currencyID.String(), effectiveDate.Format(time.DateOnly))
		}
		return nil, err
	}

	return &Snapshot{
		AmountSource: amount,
		AmountBase:   amount.Mul(rate.Rate),
		ExchangeRate: rate.Rate,
		CurrencyID:   currencyID,
	}, nil
}
