package liquidity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/coingecko"
)

type fakeFetcher struct {
	prices []coingecko.PriceData
	err    error
	block  bool
	calls  atomic.Int32
}

func (f *fakeFetcher) GetCurrentPrices(ctx context.Context, ids []string) ([]coingecko.PriceData, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.prices, f.err
}

type fakePartner struct {
	rate decimal.Decimal
	err  error
}

func (p fakePartner) EstimateRate(context.Context, string, string, decimal.Decimal) (decimal.Decimal, error) {
	return p.rate, p.err
}

func price(id, v string) coingecko.PriceData {
	return coingecko.PriceData{SourceAssetID: id, PriceUSD: decimal.RequireFromString(v), Timestamp: time.Now()}
}

func mustSettings(t *testing.T, snapshot SettingsSnapshot) *Settings {
	t.Helper()
	s, err := NewSettings(snapshot)
	require.NoError(t, err)
	return s
}

func newAggregator(t *testing.T, fetcher PriceFetcher, partner PartnerQuoter, mode Mode) (*Aggregator, *RateCache) {
	t.Helper()
	cache := NewRateCache(assets.NewDefaultRegistry(), fetcher, CacheConfig{FetchTimeout: 50 * time.Millisecond}, zap.NewNop())
	settings := mustSettings(t, SettingsSnapshot{
		Mode:    mode,
		Partner: PartnerConfig{Name: "SWAPZONE", BaseURL: "http://partner.invalid"},
	})
	return NewAggregator(cache, settings, partner, zap.NewNop()), cache
}

func TestGetRate(t *testing.T) {
	t.Run("PicksLowestSpreadProvider", func(t *testing.T) {
		fetcher := &fakeFetcher{prices: []coingecko.PriceData{price("bitcoin", "60000"), price("ethereum", "3000")}}
		agg, cache := newAggregator(t, fetcher, nil, ModeInternal)
		require.NoError(t, cache.Refresh(context.Background()))

		quote := agg.GetRate(context.Background(), "btc", "eth")

		base := decimal.NewFromInt(20)
		assert.Equal(t, "1INCH_AGGREGATOR", quote.Provider)
		assert.True(t, quote.Rate.Equal(base.Mul(decimal.RequireFromString("0.999"))), quote.Rate.String())
		assert.True(t, quote.Rate.LessThanOrEqual(base))
		assert.False(t, quote.IsStale)
	})

	t.Run("TiesGoToEarlierProvider", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, nil, ModeInternal)
		WithProviders([]Provider{
			{Name: "FIRST", Spread: decimal.RequireFromString("0.001")},
			{Name: "SECOND", Spread: decimal.RequireFromString("0.001")},
		})(agg)

		assert.Equal(t, "FIRST", agg.GetRate(context.Background(), "ETH", "USDT").Provider)
	})

	t.Run("NeverRefreshedPricesAreStale", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, nil, ModeInternal)

		quote := agg.GetRate(context.Background(), "BTC", "ETH")
		expected := decimal.NewFromInt(65000).Div(decimal.NewFromInt(3500)).Mul(decimal.RequireFromString("0.999"))
		assert.True(t, quote.Rate.Equal(expected))
		assert.True(t, quote.IsStale)
	})

	t.Run("UnknownTickerQuotesAtParity", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, nil, ModeInternal)

		quote := agg.GetRate(context.Background(), "DOGE", "PEPE")
		assert.True(t, quote.Rate.Equal(decimal.RequireFromString("0.999")))
		assert.True(t, quote.IsStale)
	})

	t.Run("QuoteEstimatesAmountAndValidity", func(t *testing.T) {
		now := time.UnixMilli(1_700_000_000_000)
		agg, _ := newAggregator(t, nil, nil, ModeInternal)
		WithClock(func() time.Time { return now })(agg)

		quote := agg.Quote(context.Background(), "USDT", "USDT", decimal.RequireFromString("250"))
		assert.Equal(t, "249.75", quote.EstimatedAmount.String())
		assert.Equal(t, now.Add(DefaultQuoteTTL), quote.ValidUntil)
	})
}

func TestRefreshFallback(t *testing.T) {
	t.Run("FailedRefreshKeepsLastKnownValues", func(t *testing.T) {
		fetcher := &fakeFetcher{prices: []coingecko.PriceData{price("bitcoin", "70000"), price("ethereum", "3500")}}
		agg, cache := newAggregator(t, fetcher, nil, ModeInternal)
		require.NoError(t, cache.Refresh(context.Background()))

		fetcher.prices = nil
		fetcher.err = coingecko.ErrRateLimited
		require.Error(t, cache.Refresh(context.Background()))

		quote := agg.GetRate(context.Background(), "BTC", "ETH")
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(20).Mul(decimal.RequireFromString("0.999"))))
		assert.False(t, quote.IsStale)

		_, lastErr := cache.LastSuccess()
		assert.ErrorIs(t, lastErr, coingecko.ErrRateLimited)
	})

	t.Run("TimeoutIsAFetchFailure", func(t *testing.T) {
		fetcher := &fakeFetcher{block: true}
		agg, cache := newAggregator(t, fetcher, nil, ModeInternal)

		err := cache.Refresh(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		quote := agg.GetRate(context.Background(), "BTC", "ETH")
		assert.True(t, quote.IsStale)
		assert.True(t, quote.Rate.IsPositive())
	})

	t.Run("PartialRefreshOnlyFreshensCoveredSymbols", func(t *testing.T) {
		fetcher := &fakeFetcher{prices: []coingecko.PriceData{price("bitcoin", "70000")}}
		agg, cache := newAggregator(t, fetcher, nil, ModeInternal)
		require.NoError(t, cache.Refresh(context.Background()))

		assert.True(t, agg.GetRate(context.Background(), "BTC", "ETH").IsStale)
		_, live, _ := cache.Price("BTC")
		assert.True(t, live)
	})

	t.Run("EmptyResponseCountsAsFailure", func(t *testing.T) {
		_, cache := newAggregator(t, &fakeFetcher{}, nil, ModeInternal)
		assert.Error(t, cache.Refresh(context.Background()))
	})

	t.Run("StartRunsLoopOnce", func(t *testing.T) {
		fetcher := &fakeFetcher{prices: []coingecko.PriceData{price("bitcoin", "70000")}}
		cache := NewRateCache(assets.NewDefaultRegistry(), fetcher, CacheConfig{RefreshInterval: time.Hour}, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cache.Start(ctx)
		cache.Start(ctx)

		require.Eventually(t, func() bool { return fetcher.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), fetcher.calls.Load())
	})
}

func TestPartnerMode(t *testing.T) {
	t.Run("UsesPartnerRateWhenAvailable", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, fakePartner{rate: decimal.RequireFromString("17.5")}, ModePartner)

		quote := agg.Quote(context.Background(), "BTC", "ETH", decimal.NewFromInt(2))
		assert.Equal(t, "SWAPZONE", quote.Provider)
		assert.Equal(t, "35", quote.EstimatedAmount.String())
		assert.False(t, quote.IsStale)
	})

	t.Run("FallsBackToInternalOnPartnerError", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, fakePartner{err: errors.New("partner down")}, ModePartner)

		quote := agg.GetRate(context.Background(), "BTC", "ETH")
		assert.Equal(t, "1INCH_AGGREGATOR", quote.Provider)
	})

	t.Run("InternalModeIgnoresPartner", func(t *testing.T) {
		agg, _ := newAggregator(t, nil, fakePartner{rate: decimal.NewFromInt(1)}, ModeInternal)
		assert.Equal(t, "1INCH_AGGREGATOR", agg.GetRate(context.Background(), "BTC", "ETH").Provider)
	})
}

func TestSettings(t *testing.T) {
	t.Run("DefaultsToInternal", func(t *testing.T) {
		s := mustSettings(t, SettingsSnapshot{})
		assert.Equal(t, ModeInternal, s.Mode())
	})

	t.Run("PartnerModeRequiresBaseURL", func(t *testing.T) {
		s := mustSettings(t, SettingsSnapshot{})
		mode := "partner"
		_, err := s.Update(SettingsUpdate{Mode: &mode})
		assert.ErrorIs(t, err, ErrInvalidMode)
		assert.Equal(t, ModeInternal, s.Mode())

		url := "https://partner.example/v1/"
		snapshot, err := s.Update(SettingsUpdate{Mode: &mode, PartnerBaseURL: &url})
		require.NoError(t, err)
		assert.Equal(t, ModePartner, snapshot.Mode)
		assert.Equal(t, "https://partner.example/v1", snapshot.Partner.BaseURL)
	})

	t.Run("RejectsUnknownMode", func(t *testing.T) {
		s := mustSettings(t, SettingsSnapshot{})
		mode := "turbo"
		_, err := s.Update(SettingsUpdate{Mode: &mode})
		assert.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("MasksAPIKey", func(t *testing.T) {
		snapshot := SettingsSnapshot{Partner: PartnerConfig{APIKey: "secret-1234"}}
		assert.Equal(t, "****1234", snapshot.Masked().Partner.APIKey)
		assert.Equal(t, "secret-1234", snapshot.Partner.APIKey)
	})
}

func TestTickers(t *testing.T) {
	fetcher := &fakeFetcher{prices: []coingecko.PriceData{price("solana", "150")}}
	_, cache := newAggregator(t, fetcher, nil, ModeInternal)
	require.NoError(t, cache.Refresh(context.Background()))

	tickers := cache.Tickers()
	require.Len(t, tickers, 6)
	assert.Equal(t, "BTC", tickers[0].Symbol)
	assert.False(t, tickers[0].Live)

	for _, tk := range tickers {
		if tk.Symbol == "SOL" {
			assert.True(t, tk.Live)
			assert.Equal(t, "150", tk.PriceUSD.String())
			assert.NotZero(t, tk.UpdatedAt)
		}
	}
}
