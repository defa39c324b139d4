// Package coingecko fetches spot USD prices from CoinGecko's /simple/price
// endpoint. Requests are rate limited and transient failures (transport
// errors, HTTP 429, HTTP 5xx) are retried with exponential backoff.
package coingecko

import (
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
	"golang.org/x/time/rate"
)

const (
	PublicBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL    = "https://pro-api.coingecko.com/api/v3"
)

// ErrRateLimited is returned when CoinGecko answers HTTP 429 on every attempt.
var ErrRateLimited = errors.New("rate limited by price source")

// PriceData is one asset's current USD price.
type PriceData struct {
	SourceAssetID string
	PriceUSD      decimal.Decimal
	Timestamp     time.Time
}

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	// APIKey is sent as x-cg-pro-api-key when BaseURL is the pro endpoint and
	// as x-cg-demo-api-key otherwise. Optional.
	APIKey string

	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerMin defaults to 25, under the public tier's 30/min.
	RateLimitPerMin int

	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         PublicBaseURL,
		Timeout:         8 * time.Second,
		MaxRetries:      2,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      4 * time.Second,
		RateLimitPerMin: 25,
	}
}

// Client fetches prices from CoinGecko.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new CoinGecko API client.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	applyDefaults(&config, ClientConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("coingecko"),
	}
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "coingecko"
}

// GetCurrentPrices fetches current USD prices for the given CoinGecko ids.
// Ids missing from the response are simply absent from the result.
func (c *Client) GetCurrentPrices(ctx context.Context, assetIDs []string) ([]PriceData, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/simple/price", c.config.BaseURL)
	params := url.Values{
		"ids":                     {strings.Join(assetIDs, ",")},
		"vs_currencies":           {"usd"},
		"include_last_updated_at": {"true"},
	}

	var response simplePriceResponse
	if err := c.doRequest(ctx, endpoint+"?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	results := make([]PriceData, 0, len(response))
	for assetID, data := range response {
		if data.USD.Sign() <= 0 {
			continue
		}
		ts := time.Now()
		if data.LastUpdated > 0 {
			ts = time.Unix(data.LastUpdated, 0)
		}
		results = append(results, PriceData{
			SourceAssetID: assetID,
			PriceUSD:      data.USD,
			Timestamp:     ts,
		})
	}

	return results, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string, result any) error {
	backoff := c.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Price request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.config.MaxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		lastErr = c.doSingleRequest(ctx, fullURL, result)
		if lastErr == nil {
			return nil
		}

		var nonRetryable *nonRetryableError
		if errors.As(lastErr, &nonRetryable) || ctx.Err() != nil {
			return lastErr
		}
	}

	return fmt.Errorf("after %d retries: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &nonRetryableError{err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		if c.config.BaseURL == ProBaseURL {
			req.Header.Set("x-cg-pro-api-key", c.config.APIKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", c.config.APIKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr coinGeckoError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return &nonRetryableError{err: fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, apiErr.Error)}
		}
		return &nonRetryableError{err: fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body))}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &nonRetryableError{err: fmt.Errorf("parsing response: %w", err)}
	}

	return nil
}

// nonRetryableError wraps errors that should not be retried.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}
