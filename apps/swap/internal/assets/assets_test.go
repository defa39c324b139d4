package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry()

	t.Run("LookupIsCaseInsensitive", func(t *testing.T) {
		asset, ok := registry.GetBySymbol("btc")
		require.True(t, ok)
		assert.Equal(t, "BTC", asset.Symbol)
		assert.Equal(t, "bitcoin", asset.CoinGeckoID)
	})

	t.Run("ProofOfWorkAssetsNeedMoreConfirmations", func(t *testing.T) {
		assert.Equal(t, 3, registry.RequiredConfirmations("BTC"))
		assert.Equal(t, 2, registry.RequiredConfirmations("LTC"))
		assert.Equal(t, 1, registry.RequiredConfirmations("ETH"))
		assert.Equal(t, 1, registry.RequiredConfirmations("SOL"))
	})

	t.Run("UnknownSymbolResolvesToSingleConfirmationEVM", func(t *testing.T) {
		asset := registry.Resolve("doge")
		assert.Equal(t, "DOGE", asset.Symbol)
		assert.Equal(t, FamilyEVM, asset.Family)
		assert.Equal(t, 1, asset.RequiredConfirmations)
		assert.False(t, registry.IsSupported("DOGE"))
	})

	t.Run("SourceIDsMapBackToSymbols", func(t *testing.T) {
		ids := registry.BySourceID()
		assert.Equal(t, "ETH", ids["ethereum"])
		assert.Len(t, ids, 6)
	})

	t.Run("AllKeepsDeclarationOrder", func(t *testing.T) {
		all := registry.All()
		require.Len(t, all, 6)
		assert.Equal(t, "BTC", all[0].Symbol)
		assert.Equal(t, "LTC", all[5].Symbol)
		assert.Equal(t, []string{"BTC", "ETH", "LTC", "SOL", "TRX", "USDT"}, registry.GetSupportedSymbols())
	})
}
