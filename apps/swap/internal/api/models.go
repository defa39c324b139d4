package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"nexusswap/apps/swap/internal/liquidity"
)

// EngineVersion is reported by the health endpoint.
const EngineVersion = "v4.0.3-PROD"

// Amount accepts a JSON string or number and keeps its textual form.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// CreateOrderRequest represents the request body for creating a swap order
type CreateOrderRequest struct {
	FromSymbol         string `json:"fromSymbol"`
	ToSymbol           string `json:"toSymbol"`
	FromAmount         Amount `json:"fromAmount"`
	DestinationAddress string `json:"destinationAddress"`
}

// QuoteResponse represents the API response for a quote
type QuoteResponse struct {
	Rate            decimal.Decimal `json:"rate"`
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
	Provider        string          `json:"provider"`
	IsStale         bool            `json:"isStale"`
	ValidUntil      int64           `json:"validUntil"` // epoch millis
}

type TickersResponse struct {
	Tickers     []liquidity.Ticker `json:"tickers"`
	LastRefresh int64              `json:"lastRefresh,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Engine        string `json:"engine"`
	LiquidityMode string `json:"liquidityMode"`
	Timestamp     int64  `json:"timestamp"`
}

// StatusOverrideRequest represents the request body for an administrative status change
type StatusOverrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
