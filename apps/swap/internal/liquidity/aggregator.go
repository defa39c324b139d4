package liquidity

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultQuoteTTL is how long a quote is advertised as valid.
const DefaultQuoteTTL = 30 * time.Second

// Provider is a synthetic liquidity source with a fixed fractional spread.
type Provider struct {
	Name   string
	Spread decimal.Decimal
}

// DefaultProviders lists the simulated venues in declaration order.
var DefaultProviders = []Provider{
	{Name: "NEXUS_INTERNAL", Spread: decimal.RequireFromString("0.002")},
	{Name: "UNISWAP_V3", Spread: decimal.RequireFromString("0.003")},
	{Name: "1INCH_AGGREGATOR", Spread: decimal.RequireFromString("0.001")},
}

// PartnerQuoter asks the external exchange partner for a rate.
type PartnerQuoter interface {
	EstimateRate(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Quote is the best available rate for a pair at request time.
type Quote struct {
	Rate            decimal.Decimal
	EstimatedAmount decimal.Decimal
	Provider        string
	IsStale         bool
	ValidUntil      time.Time
}

// Aggregator picks the best rate across providers on top of the rate cache and
// optionally prefers the settlement partner. It never fails: degraded inputs
// produce a stale quote.
type Aggregator struct {
	cache     *RateCache
	providers []Provider
	settings  *Settings
	partner   PartnerQuoter
	logger    *zap.Logger
	now       func() time.Time
	quoteTTL  time.Duration
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithProviders replaces the default provider set.
func WithProviders(providers []Provider) AggregatorOption {
	return func(a *Aggregator) { a.providers = providers }
}

// WithClock sets the time source used for ValidUntil.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator. partner may be nil.
func NewAggregator(cache *RateCache, settings *Settings, partner PartnerQuoter, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		cache:     cache,
		providers: DefaultProviders,
		settings:  settings,
		partner:   partner,
		logger:    logger.Named("aggregator"),
		now:       time.Now,
		quoteTTL:  DefaultQuoteTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mode returns the active liquidity mode.
func (a *Aggregator) Mode() Mode {
	return a.settings.Mode()
}

// GetRate returns the best rate for one unit of from expressed in to.
func (a *Aggregator) GetRate(ctx context.Context, from, to string) Quote {
	return a.Quote(ctx, from, to, decimal.NewFromInt(1))
}

// Quote returns the best rate for from/to and the estimated output for amount.
func (a *Aggregator) Quote(ctx context.Context, from, to string, amount decimal.Decimal) Quote {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	var quote Quote
	if partnerQuote, ok := a.partnerQuote(ctx, from, to, amount); ok {
		quote = partnerQuote
	} else {
		quote = a.internalQuote(from, to)
	}

	quote.EstimatedAmount = amount.Mul(quote.Rate).Round(6)
	quote.ValidUntil = a.now().Add(a.quoteTTL)
	return quote
}

func (a *Aggregator) partnerQuote(ctx context.Context, from, to string, amount decimal.Decimal) (Quote, bool) {
	snapshot := a.settings.Current()
	if snapshot.Mode != ModePartner || a.partner == nil {
		return Quote{}, false
	}

	rate, err := a.partner.EstimateRate(ctx, from, to, amount)
	if err != nil || rate.Sign() <= 0 {
		a.logger.Warn("Partner quote unavailable, falling back to internal aggregation",
			zap.String("partner", snapshot.Partner.Name),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
		return Quote{}, false
	}

	return Quote{Rate: rate, Provider: snapshot.Partner.Name}, true
}

func (a *Aggregator) internalQuote(from, to string) Quote {
	fromPrice, fromLive := a.legPrice(from)
	toPrice, toLive := a.legPrice(to)

	baseRate := fromPrice.Div(toPrice)

	best := Quote{Rate: decimal.Zero}
	for i, p := range a.providers {
		rate := baseRate.Mul(decimal.NewFromInt(1).Sub(p.Spread))
		// Strictly greater keeps the earlier provider on ties.
		if i == 0 || rate.GreaterThan(best.Rate) {
			best = Quote{Rate: rate, Provider: p.Name}
		}
	}
	if len(a.providers) == 0 {
		best = Quote{Rate: baseRate, Provider: "MARKET"}
	}

	best.IsStale = !fromLive || !toLive
	return best
}

// legPrice returns the cached price of symbol and whether it comes from a
// successful refresh. Unknown symbols price at parity.
func (a *Aggregator) legPrice(symbol string) (decimal.Decimal, bool) {
	price, live, known := a.cache.Price(symbol)
	if !known || price.Sign() <= 0 {
		a.logger.Warn("No price for symbol, quoting at parity", zap.String("symbol", symbol))
		return decimal.NewFromInt(1), false
	}
	return price, live
}
