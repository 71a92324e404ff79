package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/currency"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	currencyTable = "cat_currencies"
	rateTable     = "cat_exchange_rates"
)

var currencyColumns = []string{
	"id", "code", "name", "iso_code", "symbol",
	"decimal_places", "is_base", "created_at",
}

var rateColumns = []string{
	"id", "currency_id", "rate", "effective_at", "created_at", "created_by",
}

// CurrencyRepo implements currency.Repository.
type CurrencyRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewCurrencyRepo creates a new currency repository.
func NewCurrencyRepo(txm postgres.QuerierProvider) *CurrencyRepo {
	return &CurrencyRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new currency.
func (r *CurrencyRepo) Create(ctx context.Context, curr *currency.Currency) error {
	q := r.builder.Insert(currencyTable).
		Columns(currencyColumns...).
		Values(
			curr.ID, curr.Code, curr.Name, curr.ISOCode, curr.Symbol,
			curr.DecimalPlaces, curr.IsBase, curr.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert currency: %w", err)
	}

	return nil
}

// GetByID retrieves one currency.
func (r *CurrencyRepo) GetByID(ctx context.Context, currID id.ID) (*currency.Currency, error) {
	q := r.builder.Select(currencyColumns...).
		From(currencyTable).
		Where(squirrel.Eq{"id": currID}).
		Limit(1)

	return r.getOne(ctx, q, currID)
}

// FindByISOCode retrieves one currency by its ISO code.
func (r *CurrencyRepo) FindByISOCode(ctx context.Context, isoCode string) (*currency.Currency, error) {
	q := r.builder.Select(currencyColumns...).
		From(currencyTable).
		Where(squirrel.Eq{"iso_code": isoCode}).
		Limit(1)

	return r.getOne(ctx, q, isoCode)
}

// GetBase returns the accounting currency.
func (r *CurrencyRepo) GetBase(ctx context.Context) (*currency.Currency, error) {
	q := r.builder.Select(currencyColumns...).
		From(currencyTable).
		Where(squirrel.Eq{"is_base": true}).
		Limit(1)

	return r.getOne(ctx, q, "base")
}

func (r *CurrencyRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key any) (*currency.Currency, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var curr currency.Currency
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &curr, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("currency", key)
		}
		return nil, fmt.Errorf("get currency: %w", err)
	}

	return &curr, nil
}

// List returns all currencies.
func (r *CurrencyRepo) List(ctx context.Context) ([]*currency.Currency, error) {
	q := r.builder.Select(currencyColumns...).
		From(currencyTable).
		OrderBy("iso_code")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*currency.Currency
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select currencies: %w", err)
	}

	return result, nil
}

// AddRate appends a rate row. Rates are never updated or deleted.
func (r *CurrencyRepo) AddRate(ctx context.Context, rate *currency.ExchangeRate) error {
	q := r.builder.Insert(rateTable).
		Columns(rateColumns...).
		Values(
			rate.ID, rate.CurrencyID, rate.Rate,
			rate.EffectiveAt, rate.CreatedAt, rate.CreatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert exchange rate: %w", err)
	}

	return nil
}

// RateAt returns the rate effective at or most recently before date.
// Among rates sharing an effective instant the newest row wins, so a
// correction (a later insert) takes precedence without rewriting history.
func (r *CurrencyRepo) RateAt(ctx context.Context, currencyID id.ID, date time.Time) (*currency.ExchangeRate, error) {
	q := r.builder.Select(rateColumns...).
		From(rateTable).
		Where(squirrel.Eq{"currency_id": currencyID}).
		Where(squirrel.LtOrEq{"effective_at": date}).
		OrderBy("effective_at DESC", "created_at DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rate currency.ExchangeRate
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rate, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("exchange rate", currencyID)
		}
		return nil, fmt.Errorf("get rate: %w", err)
	}

	return &rate, nil
}

// ListRates returns the rate history for a currency, newest first.
func (r *CurrencyRepo) ListRates(ctx context.Context, currencyID id.ID, limit int) ([]*currency.ExchangeRate, error) {
	q := r.builder.Select(rateColumns...).
		From(rateTable).
		Where(squirrel.Eq{"currency_id": currencyID}).
		OrderBy("effective_at DESC", "created_at DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*currency.ExchangeRate
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select rates: %w", err)
	}

	return result, nil
}

// Ensure interface compliance.
var _ currency.Repository = (*CurrencyRepo)(nil)
