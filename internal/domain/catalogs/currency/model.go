// Package currency provides the Currency catalog and its append-only
// exchange-rate table. Rates are never updated in place: corrections are
// new rows, so historical movement valuations stay untouched.
package currency

import (
	"context"
	"regexp"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Currency represents a monetary unit.
type Currency struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// ISOCode is the ISO 4217 alphabetic code (e.g., "USD", "PYG")
	ISOCode string `db:"iso_code" json:"isoCode"`

	Symbol *string `db:"symbol" json:"symbol,omitempty"`

	// DecimalPlaces is the number of decimal places for display
	DecimalPlaces int `db:"decimal_places" json:"decimalPlaces"`

	// IsBase indicates the accounting (local) currency.
	// Valuation snapshots convert into this currency.
	IsBase bool `db:"is_base" json:"isBase"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewCurrency creates a new Currency with required fields.
func NewCurrency(isoCode, name string) *Currency {
	return &Currency{
		ID:            id.New(),
		Code:          isoCode,
		Name:          name,
		ISOCode:       isoCode,
		DecimalPlaces: 2,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate checks catalog invariants.
func (c *Currency) Validate(ctx context.Context) error {
	if c.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if !isValidISOCode(c.ISOCode) {
		return apperror.NewValidation("ISO code must be 3 uppercase letters").
			WithDetail("field", "isoCode").
			WithDetail("value", c.ISOCode)
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces > 8 {
		return apperror.NewValidation("decimal places must be between 0 and 8").
			WithDetail("field", "decimalPlaces")
	}
	return nil
}

// ExchangeRate is one append-only rate row: the value of one unit of
// CurrencyID expressed in the base currency, effective from EffectiveAt.
type ExchangeRate struct {
	ID         id.ID       `db:"id" json:"id"`
	CurrencyID id.ID       `db:"currency_id" json:"currencyId"`
	Rate       types.Money `db:"rate" json:"rate"`
	// EffectiveAt is the first instant the rate applies
	EffectiveAt time.Time `db:"effective_at" json:"effectiveAt"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	CreatedBy   string    `db:"created_by" json:"createdBy,omitempty"`
}

// NewExchangeRate creates a rate row.
func NewExchangeRate(currencyID id.ID, rate types.Money, effectiveAt time.Time) *ExchangeRate {
	return &ExchangeRate{
		ID:          id.New(),
		CurrencyID:  currencyID,
		Rate:        rate,
		EffectiveAt: effectiveAt,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks rate invariants.
func (r *ExchangeRate) Validate(ctx context.Context) error {
	if id.IsNil(r.CurrencyID) {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currencyId")
	}
	if !r.Rate.IsPositive() {
		return apperror.NewValidation("rate must be positive").
			WithDetail("field", "rate")
	}
	if r.EffectiveAt.IsZero() {
		return apperror.NewValidation("effective date is required").
			WithDetail("field", "effectiveAt")
	}
	return nil
}

func isValidISOCode(code string) bool {
	return regexp.MustCompile(`^[A-Z]{3}$`).MatchString(code)
}
