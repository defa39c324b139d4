package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/liquidity"
)

type staticSource liquidity.PartnerConfig

func (s staticSource) Partner() liquidity.PartnerConfig { return liquidity.PartnerConfig(s) }

func TestCreateExchange(t *testing.T) {
	t.Run("PostsRequestAndParsesExchange", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/exchange", r.URL.Path)
			assert.Equal(t, "key-1", r.Header.Get("x-api-key"))

			var req ExchangeRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "BTC", req.From)
			assert.Equal(t, "0.5", req.Amount.String())

			_, _ = w.Write([]byte(`{"id":"px-42","payinAddress":"bc1qpartner","amount":"9.1"}`))
		}))
		defer server.Close()

		client := NewClient(staticSource{Name: "SWAPZONE", BaseURL: server.URL, APIKey: "key-1"}, time.Second, zap.NewNop())
		exchange, err := client.CreateExchange(context.Background(), ExchangeRequest{
			From: "BTC", To: "ETH", Amount: decimal.RequireFromString("0.5"), Address: "0xabc",
		})
		require.NoError(t, err)
		assert.Equal(t, "px-42", exchange.ID)
		assert.Equal(t, "bc1qpartner", exchange.PayinAddress)
		assert.Equal(t, "SWAPZONE", client.Name())
	})

	t.Run("IncompleteExchangeIsAnError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"px-43"}`))
		}))
		defer server.Close()

		client := NewClient(staticSource{BaseURL: server.URL}, time.Second, zap.NewNop())
		_, err := client.CreateExchange(context.Background(), ExchangeRequest{From: "BTC", To: "ETH"})
		assert.Error(t, err)
	})

	t.Run("NonSuccessStatusIsAnError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"maintenance","message":"try later"}`))
		}))
		defer server.Close()

		client := NewClient(staticSource{BaseURL: server.URL}, time.Second, zap.NewNop())
		_, err := client.CreateExchange(context.Background(), ExchangeRequest{From: "BTC", To: "ETH"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "maintenance")
	})

	t.Run("UnconfiguredPartner", func(t *testing.T) {
		client := NewClient(staticSource{}, time.Second, zap.NewNop())
		_, err := client.CreateExchange(context.Background(), ExchangeRequest{})
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Equal(t, "EXCHANGE_PARTNER", client.Name())
	})
}

func TestEstimateRate(t *testing.T) {
	t.Run("PrefersExplicitRate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/exchange-amount", r.URL.Path)
			assert.Equal(t, "btc", r.URL.Query().Get("from"))
			assert.Equal(t, "2", r.URL.Query().Get("amount"))
			_, _ = w.Write([]byte(`{"rate":"18.2","estimatedAmount":"36.4"}`))
		}))
		defer server.Close()

		client := NewClient(staticSource{BaseURL: server.URL}, time.Second, zap.NewNop())
		rate, err := client.EstimateRate(context.Background(), "BTC", "ETH", decimal.NewFromInt(2))
		require.NoError(t, err)
		assert.Equal(t, "18.2", rate.String())
	})

	t.Run("DerivesRateFromEstimatedAmount", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"estimatedAmount":"30"}`))
		}))
		defer server.Close()

		client := NewClient(staticSource{BaseURL: server.URL}, time.Second, zap.NewNop())
		rate, err := client.EstimateRate(context.Background(), "BTC", "ETH", decimal.NewFromInt(2))
		require.NoError(t, err)
		assert.Equal(t, "15", rate.String())
	})

	t.Run("TimesOut", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		client := NewClient(staticSource{BaseURL: server.URL}, 30*time.Millisecond, zap.NewNop())
		_, err := client.EstimateRate(context.Background(), "BTC", "ETH", decimal.NewFromInt(1))
		assert.Error(t, err)
	})
}
