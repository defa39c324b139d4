package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/model"
)

// QuoteHandler serves pricing endpoints. Pricing never fails: degraded market
// data produces a stale quote instead of an error.
type QuoteHandler struct {
	responder
	aggregator *liquidity.Aggregator
	cache      *liquidity.RateCache
}

func NewQuoteHandler(aggregator *liquidity.Aggregator, cache *liquidity.RateCache, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		responder:  responder{logger: logger},
		aggregator: aggregator,
		cache:      cache,
	}
}

// GetQuote handles GET /api/quote?from=&to=&amount=
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if from == "" || to == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_parameters", "Parameters from and to are required")
		return
	}

	amount := decimal.NewFromInt(1)
	if raw := strings.TrimSpace(query.Get("amount")); raw != "" {
		parsed, err := model.ParseAmount(raw)
		if err != nil || parsed.IsNegative() {
			h.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", "Amount must be a non-negative decimal")
			return
		}
		amount = parsed
	}

	quote := h.aggregator.Quote(r.Context(), from, to, amount)

	h.writeJSONResponse(w, http.StatusOK, QuoteResponse{
		Rate:            quote.Rate,
		EstimatedAmount: quote.EstimatedAmount,
		Provider:        quote.Provider,
		IsStale:         quote.IsStale,
		ValidUntil:      quote.ValidUntil.UnixMilli(),
	})
}

// GetTickers handles GET /api/tickers
func (h *QuoteHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	response := TickersResponse{Tickers: h.cache.Tickers()}
	if last, _ := h.cache.LastSuccess(); !last.IsZero() {
		response.LastRefresh = last.UnixMilli()
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}
