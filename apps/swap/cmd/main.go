package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/api"
	"nexusswap/apps/swap/internal/assets"
	"nexusswap/apps/swap/internal/chain"
	"nexusswap/apps/swap/internal/coingecko"
	"nexusswap/apps/swap/internal/config"
	"nexusswap/apps/swap/internal/event_publisher"
	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/observer"
	"nexusswap/apps/swap/internal/order"
	"nexusswap/apps/swap/internal/partner"
	"nexusswap/apps/swap/internal/repository"
	"nexusswap/apps/swap/internal/scheduler"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.NewConfig()

	logger.Info("Starting application with configuration",
		zap.Int("api_port", cfg.APIPort),
		zap.String("liquidity_mode", cfg.LiquidityMode),
		zap.String("partner_base_url", cfg.PartnerBaseURL),
		zap.Duration("price_refresh_interval", cfg.PriceRefreshInterval),
		zap.Duration("observer_interval", cfg.ObserverInterval),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Duration("order_retention", cfg.OrderRetention),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := assets.NewDefaultRegistry()

	settings, err := liquidity.NewSettings(liquidity.SettingsSnapshot{
		Mode: liquidity.Mode(cfg.LiquidityMode),
		Partner: liquidity.PartnerConfig{
			Name:    cfg.PartnerName,
			BaseURL: cfg.PartnerBaseURL,
			APIKey:  cfg.PartnerAPIKey,
		},
	})
	if err != nil {
		logger.Fatal("Invalid liquidity configuration", zap.Error(err))
	}

	priceClient := coingecko.NewClient(coingecko.ClientConfig{
		APIKey:  cfg.CoinGeckoAPIKey,
		BaseURL: cfg.CoinGeckoBaseURL,
		Timeout: cfg.PriceFetchTimeout,
	}, logger)

	cache := liquidity.NewRateCache(registry, priceClient, liquidity.CacheConfig{
		RefreshInterval: cfg.PriceRefreshInterval,
		FetchTimeout:    cfg.PriceFetchTimeout,
	}, logger)
	cache.Start(ctx)

	partnerClient := partner.NewClient(settings, cfg.PartnerTimeout, logger)
	aggregator := liquidity.NewAggregator(cache, settings, partnerClient, logger)

	orderRepository := repository.NewOrderRepository(logger)
	depositAddressRepository := repository.NewDepositAddressRepository(logger)
	generator := chain.NewGenerator(registry, nil)

	deps := order.Dependencies{
		Orders:    orderRepository,
		Deposits:  depositAddressRepository,
		Assets:    registry,
		Quoter:    aggregator,
		Settler:   partnerClient,
		Prices:    cache,
		Addresses: generator,
	}

	if cfg.EventsEnabled() {
		outboxRepository := repository.NewOutboxRepository(0, logger)
		deps.Events = outboxRepository

		eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.EventPublishInterval, outboxRepository, logger)
		if err != nil {
			logger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		defer eventPublisher.Close()

		go eventPublisher.Start(ctx)
	} else {
		logger.Info("KAFKA_BROKER not set, order events are not published")
	}

	manager := order.NewManager(deps, order.Config{
		MaxLogEntries: cfg.MaxLogEntries,
		Retention:     cfg.OrderRetention,
	}, logger)

	lifecycle := observer.NewObserver(manager, registry, generator, observer.Config{
		Interval: cfg.ObserverInterval,
	}, logger)
	go lifecycle.Run(ctx)

	runner := scheduler.New(ctx, logger)
	if _, err := runner.AddRetentionSweep(cfg.RetentionSweepSpec, manager); err != nil {
		logger.Fatal("Failed to schedule retention sweep", zap.Error(err))
	}
	runner.Start()

	apiServer := api.NewServer(cfg.APIPort, manager, aggregator, cache, settings, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	runner.Stop()
	cancel()

	logger.Info("Application shutdown complete")
}
