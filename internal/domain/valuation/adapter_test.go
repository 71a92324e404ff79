package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/currency"
)

type fakeRateSource struct {
	base  *currency.Currency
	rates map[id.ID][]*currency.ExchangeRate
}

func (f *fakeRateSource) GetBase(ctx context.Context) (*currency.Currency, error) {
	if f.base == nil {
		return nil, apperror.NewNotFound("currency", "base")
	}
	return f.base, nil
}

func (f *fakeRateSource) RateAt(ctx context.Context, currencyID id.ID, date time.Time) (*currency.ExchangeRate, error) {
	var best *currency.ExchangeRate
	for _, r := range f.rates[currencyID] {
		if r.EffectiveAt.After(date) {
			continue
		}
		if best == nil || r.EffectiveAt.After(best.EffectiveAt) ||
			(r.EffectiveAt.Equal(best.EffectiveAt) && r.CreatedAt.After(best.CreatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil, apperror.NewNotFound("exchange rate", currencyID)
	}
	return best, nil
}

func newSource() (*fakeRateSource, *currency.Currency, *currency.Currency) {
	base := currency.NewCurrency("PYG", "Guarani")
	base.IsBase = true
	usd := currency.NewCurrency("USD", "US Dollar")
	return &fakeRateSource{
		base:  base,
		rates: make(map[id.ID][]*currency.ExchangeRate),
	}, base, usd
}

func TestPrice_BaseCurrencyRateOne(t *testing.T) {
	src, base, _ := newSource()
	adapter := NewAdapter(src)

	snap, err := adapter.Price(context.Background(), types.MustMoney("2500"), base.ID, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, snap.ExchangeRate.Equal(types.MustMoney("1")))
	assert.True(t, snap.AmountBase.Equal(types.MustMoney("2500")))
	assert.Equal(t, base.ID, snap.CurrencyID)
}

func TestPrice_ConvertsWithEffectiveRate(t *testing.T) {
	src, _, usd := newSource()
	adapter := NewAdapter(src)
	now := time.Now().UTC()

	src.rates[usd.ID] = []*currency.ExchangeRate{
		currency.NewExchangeRate(usd.ID, types.MustMoney("7100"), now.AddDate(0, 0, -10)),
		currency.NewExchangeRate(usd.ID, types.MustMoney("7300"), now.AddDate(0, 0, -2)),
	}

	snap, err := adapter.Price(context.Background(), types.MustMoney("10"), usd.ID, now)
	require.NoError(t, err)

	assert.True(t, snap.ExchangeRate.Equal(types.MustMoney("7300")), "rate = %s", snap.ExchangeRate)
	assert.True(t, snap.AmountBase.Equal(types.MustMoney("73000")), "base = %s", snap.AmountBase)
	assert.True(t, snap.AmountSource.Equal(types.MustMoney("10")))
}

func TestPrice_UsesRateBeforeDate(t *testing.T) {
	src, _, usd := newSource()
	adapter := NewAdapter(src)
	now := time.Now().UTC()

	src.rates[usd.ID] = []*currency.ExchangeRate{
		currency.NewExchangeRate(usd.ID, types.MustMoney("7100"), now.AddDate(0, 0, -10)),
		currency.NewExchangeRate(usd.ID, types.MustMoney("7300"), now.AddDate(0, 0, -2)),
	}

	// Pricing as of 5 days ago must pick the older rate, not the newest.
	snap, err := adapter.Price(context.Background(), types.MustMoney("1"), usd.ID, now.AddDate(0, 0, -5))
	require.NoError(t, err)
	assert.True(t, snap.ExchangeRate.Equal(types.MustMoney("7100")), "rate = %s", snap.ExchangeRate)
}

func TestPrice_MissingRate(t *testing.T) {
	src, _, usd := newSource()
	adapter := NewAdapter(src)

	_, err := adapter.Price(context.Background(), types.MustMoney("10"), usd.ID, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValuationUnavailable))
}

func TestPrice_NoBaseCurrency(t *testing.T) {
	src, _, usd := newSource()
	src.base = nil
	adapter := NewAdapter(src)

	_, err := adapter.Price(context.Background(), types.MustMoney("10"), usd.ID, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValuationUnavailable))
}
