package assets

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Family groups assets by address and transaction hash format.
type Family string

const (
	FamilyEVM    Family = "EVM"    // account based, 0x-prefixed hex
	FamilyUTXO   Family = "UTXO"   // bitcoin style, bech32 addresses
	FamilySolana Family = "SOLANA" // base58
	FamilyTron   Family = "TRON"   // base58 addresses, bare hex hashes
)

// Asset represents a cryptocurrency asset with its settlement properties
type Asset struct {
	Symbol                string          `json:"symbol"`
	Name                  string          `json:"name"`
	CoinGeckoID           string          `json:"coingecko_id"`
	Family                Family          `json:"family"`
	AddressPrefix         string          `json:"address_prefix,omitempty"`
	ProofOfWork           bool            `json:"proof_of_work"`
	RequiredConfirmations int             `json:"required_confirmations"`
	ReferencePriceUSD     decimal.Decimal `json:"reference_price_usd"`
}

// Registry holds all supported assets
type Registry struct {
	assets   map[string]*Asset
	ordered  []*Asset
	fallback Asset
}

// NewRegistry creates a registry with the given assets. Symbols are stored upper-cased.
func NewRegistry(supported []Asset) *Registry {
	registry := &Registry{
		assets: make(map[string]*Asset, len(supported)),
		fallback: Asset{
			Family:                FamilyEVM,
			RequiredConfirmations: 1,
		},
	}

	for i := range supported {
		asset := supported[i]
		asset.Symbol = strings.ToUpper(asset.Symbol)
		registry.assets[asset.Symbol] = &asset
		registry.ordered = append(registry.ordered, &asset)
	}

	return registry
}

// NewDefaultRegistry creates the registry of assets offered by the swap widget
func NewDefaultRegistry() *Registry {
	return NewRegistry([]Asset{
		{
			Symbol:                "BTC",
			Name:                  "Bitcoin",
			CoinGeckoID:           "bitcoin",
			Family:                FamilyUTXO,
			AddressPrefix:         "bc1q",
			ProofOfWork:           true,
			RequiredConfirmations: 3,
			ReferencePriceUSD:     decimal.NewFromInt(65000),
		},
		{
			Symbol:                "ETH",
			Name:                  "Ethereum",
			CoinGeckoID:           "ethereum",
			Family:                FamilyEVM,
			RequiredConfirmations: 1,
			ReferencePriceUSD:     decimal.NewFromInt(3500),
		},
		{
			Symbol:                "SOL",
			Name:                  "Solana",
			CoinGeckoID:           "solana",
			Family:                FamilySolana,
			RequiredConfirmations: 1,
			ReferencePriceUSD:     decimal.NewFromInt(140),
		},
		{
			Symbol:                "USDT",
			Name:                  "Tether USD (ERC-20)",
			CoinGeckoID:           "tether",
			Family:                FamilyEVM,
			RequiredConfirmations: 1,
			ReferencePriceUSD:     decimal.NewFromInt(1),
		},
		{
			Symbol:                "TRX",
			Name:                  "Tron",
			CoinGeckoID:           "tron",
			Family:                FamilyTron,
			AddressPrefix:         "T",
			RequiredConfirmations: 1,
			ReferencePriceUSD:     decimal.RequireFromString("0.12"),
		},
		{
			Symbol:                "LTC",
			Name:                  "Litecoin",
			CoinGeckoID:           "litecoin",
			Family:                FamilyUTXO,
			AddressPrefix:         "ltc1q",
			ProofOfWork:           true,
			RequiredConfirmations: 2,
			ReferencePriceUSD:     decimal.NewFromInt(80),
		},
	})
}

// GetBySymbol returns an asset by its symbol (case-insensitive)
func (r *Registry) GetBySymbol(symbol string) (*Asset, bool) {
	asset, exists := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return asset, exists
}

// Resolve returns the asset for symbol, or a generic EVM asset requiring a
// single confirmation when the symbol is not registered.
func (r *Registry) Resolve(symbol string) Asset {
	if asset, ok := r.GetBySymbol(symbol); ok {
		return *asset
	}
	fallback := r.fallback
	fallback.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return fallback
}

// RequiredConfirmations returns the confirmation target for deposits of symbol
func (r *Registry) RequiredConfirmations(symbol string) int {
	return r.Resolve(symbol).RequiredConfirmations
}

// IsSupported checks if a symbol is supported
func (r *Registry) IsSupported(symbol string) bool {
	_, exists := r.GetBySymbol(symbol)
	return exists
}

// All returns the registered assets in declaration order
func (r *Registry) All() []Asset {
	out := make([]Asset, 0, len(r.ordered))
	for _, asset := range r.ordered {
		out = append(out, *asset)
	}
	return out
}

// GetSupportedSymbols returns all supported asset symbols, sorted
func (r *Registry) GetSupportedSymbols() []string {
	symbols := make([]string, 0, len(r.assets))
	for symbol := range r.assets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// BySourceID maps CoinGecko ids back to symbols.
func (r *Registry) BySourceID() map[string]string {
	out := make(map[string]string, len(r.ordered))
	for _, asset := range r.ordered {
		if asset.CoinGeckoID != "" {
			out[asset.CoinGeckoID] = asset.Symbol
		}
	}
	return out
}
