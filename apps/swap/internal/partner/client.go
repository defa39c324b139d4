// Package partner talks to the external exchange partner used when the
// liquidity mode is "partner". Connection details are read from the live
// liquidity settings on every call so operator updates apply immediately.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/liquidity"
)

var ErrNotConfigured = errors.New("settlement partner is not configured")

// ConfigSource provides the current partner connection details.
type ConfigSource interface {
	Partner() liquidity.PartnerConfig
}

// ExchangeRequest asks the partner to open a settlement.
type ExchangeRequest struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address"`
}

// Exchange is the partner's view of an opened settlement.
type Exchange struct {
	ID           string          `json:"id"`
	PayinAddress string          `json:"payinAddress"`
	Amount       decimal.Decimal `json:"amount"`
}

type estimateResponse struct {
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
	Rate            decimal.Decimal `json:"rate"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client is the partner HTTP client.
type Client struct {
	source     ConfigSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a partner client with the given per-request timeout.
func NewClient(source ConfigSource, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("partner"),
	}
}

// Name returns the configured partner name.
func (c *Client) Name() string {
	if name := c.source.Partner().Name; name != "" {
		return name
	}
	return "EXCHANGE_PARTNER"
}

// CreateExchange opens a settlement with the partner and returns its pay-in address.
func (c *Client) CreateExchange(ctx context.Context, req ExchangeRequest) (*Exchange, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exchange request: %w", err)
	}

	var exchange Exchange
	if err := c.do(ctx, http.MethodPost, "/exchange", nil, body, &exchange); err != nil {
		return nil, err
	}

	if exchange.ID == "" || exchange.PayinAddress == "" {
		return nil, fmt.Errorf("partner returned incomplete exchange (id=%q)", exchange.ID)
	}

	c.logger.Info("Opened partner exchange",
		zap.String("partner_id", exchange.ID),
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("amount", req.Amount.String()))

	return &exchange, nil
}

// EstimateRate returns the partner's rate for amount of from in to.
func (c *Client) EstimateRate(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	params := url.Values{
		"from":   {strings.ToLower(from)},
		"to":     {strings.ToLower(to)},
		"amount": {amount.String()},
	}

	var resp estimateResponse
	if err := c.do(ctx, http.MethodGet, "/exchange-amount", params, nil, &resp); err != nil {
		return decimal.Zero, err
	}

	if resp.Rate.IsPositive() {
		return resp.Rate, nil
	}
	if resp.EstimatedAmount.IsPositive() && amount.IsPositive() {
		return resp.EstimatedAmount.Div(amount), nil
	}
	return decimal.Zero, errors.New("partner returned no usable rate")
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, result any) error {
	cfg := c.source.Partner()
	if !cfg.Configured() {
		return ErrNotConfigured
	}

	fullURL := strings.TrimRight(cfg.BaseURL, "/") + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create partner request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.APIKey != "" {
		req.Header.Set("x-api-key", cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("partner request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read partner response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(payload, &apiErr); jsonErr == nil && (apiErr.Message != "" || apiErr.Error != "") {
			return fmt.Errorf("partner error (HTTP %d): %s %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("partner error (HTTP %d)", resp.StatusCode)
	}

	if err := json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("failed to parse partner response: %w", err)
	}

	return nil
}
