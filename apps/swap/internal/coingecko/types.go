package coingecko

import "github.com/shopspring/decimal"

// simplePriceResponse represents the response from /simple/price endpoint.
// Example response:
//
//	{
//	  "bitcoin": {
//	    "usd": 64321.5,
//	    "last_updated_at": 1704067200
//	  }
//	}
type simplePriceResponse map[string]simplePriceData

type simplePriceData struct {
	USD         decimal.Decimal `json:"usd"`
	LastUpdated int64           `json:"last_updated_at"`
}

// coinGeckoError represents an error response from the CoinGecko API.
type coinGeckoError struct {
	Error string `json:"error"`
}
