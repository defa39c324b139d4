package liquidity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/coingecko"
)

// PriceFetcher is the external market data source behind the cache.
type PriceFetcher interface {
	GetCurrentPrices(ctx context.Context, assetIDs []string) ([]coingecko.PriceData, error)
}

// CacheConfig controls the background refresh.
type CacheConfig struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

type cacheEntry struct {
	price     decimal.Decimal
	updatedAt time.Time
	live      bool
}

// Ticker is one row of the market ticker.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	Live      bool            `json:"live"`
	UpdatedAt int64           `json:"updatedAt,omitempty"`
}

// RateCache keeps the last known USD price of every registered asset. It is
// seeded with reference prices and overwritten by successful refreshes; failed
// refreshes leave it untouched.
type RateCache struct {
	registry *assets.Registry
	fetcher  PriceFetcher
	config   CacheConfig
	logger   *zap.Logger

	mu          sync.RWMutex
	entries     map[string]cacheEntry
	lastSuccess time.Time
	lastError   error

	startOnce sync.Once
}

// NewRateCache creates a cache seeded with the registry's reference prices. A
// nil fetcher disables refreshing.
func NewRateCache(registry *assets.Registry, fetcher PriceFetcher, config CacheConfig, logger *zap.Logger) *RateCache {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 30 * time.Second
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 8 * time.Second
	}

	entries := make(map[string]cacheEntry)
	for _, asset := range registry.All() {
		if asset.ReferencePriceUSD.Sign() > 0 {
			entries[asset.Symbol] = cacheEntry{price: asset.ReferencePriceUSD}
		}
	}

	return &RateCache{
		registry: registry,
		fetcher:  fetcher,
		config:   config,
		logger:   logger.Named("rate_cache"),
		entries:  entries,
	}
}

// Price returns the cached USD price of symbol. live is false when no
// successful refresh has ever covered symbol; known is false for unlisted symbols.
func (c *RateCache) Price(symbol string) (price decimal.Decimal, live bool, known bool) {
	asset := c.registry.Resolve(symbol)

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[asset.Symbol]
	if !ok {
		return decimal.Zero, false, false
	}
	return entry.price, entry.live, true
}

// PriceUSD returns the cached USD price of symbol.
func (c *RateCache) PriceUSD(symbol string) (decimal.Decimal, bool) {
	price, _, known := c.Price(symbol)
	return price, known
}

// Refresh fetches live prices for every registered asset once. On error the
// cache keeps serving its previous values.
func (c *RateCache) Refresh(ctx context.Context) error {
	if c.fetcher == nil {
		return nil
	}

	bySource := c.registry.BySourceID()
	ids := make([]string, 0, len(bySource))
	for _, asset := range c.registry.All() {
		if asset.CoinGeckoID != "" {
			ids = append(ids, asset.CoinGeckoID)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	prices, err := c.fetcher.GetCurrentPrices(fetchCtx, ids)
	if err == nil && len(prices) == 0 {
		err = errors.New("price source returned no prices")
	}
	if err != nil {
		c.mu.Lock()
		c.lastError = err
		c.mu.Unlock()
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range prices {
		symbol, ok := bySource[p.SourceAssetID]
		if !ok || p.PriceUSD.Sign() <= 0 {
			continue
		}
		c.entries[symbol] = cacheEntry{price: p.PriceUSD, updatedAt: now, live: true}
	}
	c.lastSuccess = now
	c.lastError = nil

	return nil
}

// Start launches the background refresh loop. Only the first call has an
// effect; the loop stops when ctx is cancelled.
func (c *RateCache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.refreshLoop(ctx)
	})
}

func (c *RateCache) refreshLoop(ctx context.Context) {
	c.logger.Info("Starting price refresh loop", zap.Duration("interval", c.config.RefreshInterval))

	c.refreshAndLog(ctx)

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Price refresh loop stopped")
			return
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *RateCache) refreshAndLog(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Price refresh failed, serving last known prices", zap.Error(err))
		return
	}
	c.logger.Debug("Refreshed prices")
}

// LastSuccess returns the time of the most recent successful refresh.
func (c *RateCache) LastSuccess() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess, c.lastError
}

// Tickers returns the cached prices in registry order.
func (c *RateCache) Tickers() []Ticker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Ticker, 0, len(c.entries))
	for _, asset := range c.registry.All() {
		entry, ok := c.entries[asset.Symbol]
		if !ok {
			continue
		}
		t := Ticker{
			Symbol:   asset.Symbol,
			Name:     asset.Name,
			PriceUSD: entry.price,
			Live:     entry.live,
		}
		if !entry.updatedAt.IsZero() {
			t.UpdatedAt = entry.updatedAt.UnixMilli()
		}
		out = append(out, t)
	}
	return out
}
