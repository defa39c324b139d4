package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/order"
)

// Server represents the API server
type Server struct {
	responder
	orderHandler *OrderHandler
	quoteHandler *QuoteHandler
	adminHandler *AdminHandler
	settings     *liquidity.Settings
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a new API server
func NewServer(port int, orders *order.Manager, aggregator *liquidity.Aggregator, cache *liquidity.RateCache, settings *liquidity.Settings, logger *zap.Logger) *Server {
	logger = logger.Named("api")

	return &Server{
		responder:    responder{logger: logger},
		orderHandler: NewOrderHandler(orders, logger),
		quoteHandler: NewQuoteHandler(aggregator, cache, logger),
		adminHandler: NewAdminHandler(orders, settings, logger),
		settings:     settings,
		logger:       logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server
func (s *Server) Start() error {
	router := s.setupRoutes()
	s.server.Handler = router

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	api.HandleFunc("/quote", s.quoteHandler.GetQuote).Methods("GET")
	api.HandleFunc("/tickers", s.quoteHandler.GetTickers).Methods("GET")

	api.HandleFunc("/orders", s.orderHandler.CreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.orderHandler.GetOrder).Methods("GET")
	api.HandleFunc("/deposits/{address}", s.orderHandler.GetOrderByDepositAddress).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/orders", s.adminHandler.ListOrders).Methods("GET")
	admin.HandleFunc("/summary", s.adminHandler.GetSummary).Methods("GET")
	admin.HandleFunc("/orders/{id}/status", s.adminHandler.OverrideStatus).Methods("POST", "PUT")
	admin.HandleFunc("/liquidity", s.adminHandler.GetLiquidity).Methods("GET")
	admin.HandleFunc("/liquidity", s.adminHandler.UpdateLiquidity).Methods("PUT")

	// Preflight requests are answered by the CORS middleware.
	router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles GET /api/health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:        "UP",
		Engine:        EngineVersion,
		LiquidityMode: string(s.settings.Mode()),
		Timestamp:     time.Now().UnixMilli(),
	})
}
