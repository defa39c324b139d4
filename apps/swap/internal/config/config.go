package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort int

	CoinGeckoBaseURL     string
	CoinGeckoAPIKey      string
	PriceRefreshInterval time.Duration
	PriceFetchTimeout    time.Duration

	ObserverInterval time.Duration

	LiquidityMode  string
	PartnerName    string
	PartnerBaseURL string
	PartnerAPIKey  string
	PartnerTimeout time.Duration

	KafkaBroker          string
	KafkaTopic           string
	EventPublishInterval time.Duration

	OrderRetention     time.Duration
	RetentionSweepSpec string
	MaxLogEntries      int
}

// NewConfig loads configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	return &Config{
		APIPort: getEnvInt("API_PORT", 3001),

		CoinGeckoBaseURL:     getEnv("COINGECKO_BASE_URL", ""),
		CoinGeckoAPIKey:      getEnv("COINGECKO_API_KEY", ""),
		PriceRefreshInterval: getEnvDuration("PRICE_REFRESH_INTERVAL", 30*time.Second),
		PriceFetchTimeout:    getEnvDuration("PRICE_FETCH_TIMEOUT", 8*time.Second),

		ObserverInterval: getEnvDuration("OBSERVER_INTERVAL", 4*time.Second),

		LiquidityMode:  strings.ToLower(getEnv("LIQUIDITY_MODE", "internal")),
		PartnerName:    getEnv("PARTNER_NAME", "CHANGENOW"),
		PartnerBaseURL: getEnv("PARTNER_BASE_URL", ""),
		PartnerAPIKey:  getEnv("PARTNER_API_KEY", ""),
		PartnerTimeout: getEnvDuration("PARTNER_TIMEOUT", 8*time.Second),

		KafkaBroker:          getEnv("KAFKA_BROKER", ""),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "swap-order-events"),
		EventPublishInterval: getEnvDuration("EVENT_PUBLISH_INTERVAL", 3*time.Second),

		OrderRetention:     getEnvDuration("ORDER_RETENTION", 24*time.Hour),
		RetentionSweepSpec: getEnv("RETENTION_SWEEP_SPEC", "@every 10m"),
		MaxLogEntries:      getEnvInt("MAX_LOG_ENTRIES", 200),
	}
}

// EventsEnabled reports whether a Kafka broker is configured.
func (c *Config) EventsEnabled() bool {
	return c.KafkaBroker != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}
