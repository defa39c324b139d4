package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/order"
)

// OrderHandler handles the public order endpoints
type OrderHandler struct {
	responder
	orders *order.Manager
}

func NewOrderHandler(orders *order.Manager, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		responder: responder{logger: logger},
		orders:    orders,
	}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.FromSymbol) == "" || strings.TrimSpace(req.ToSymbol) == "" ||
		strings.TrimSpace(string(req.FromAmount)) == "" || strings.TrimSpace(req.DestinationAddress) == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "incomplete_parameters", "fromSymbol, toSymbol, fromAmount and destinationAddress are required")
		return
	}

	created, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		FromSymbol:         req.FromSymbol,
		ToSymbol:           req.ToSymbol,
		FromAmount:         string(req.FromAmount),
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		if errors.Is(err, order.ErrInvalidRequest) {
			h.writeErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
			return
		}
		h.logger.Error("Failed to create order", zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal Engine Failure")
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, created)
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, err := h.orders.GetOrder(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, found)
}

// GetOrderByDepositAddress handles GET /api/deposits/{address}
func (h *OrderHandler) GetOrderByDepositAddress(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	found, err := h.orders.GetOrderByDepositAddress(address)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, found)
}

func (h *OrderHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, order.ErrOrderNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, "order_not_found", "Order not found")
		return
	}
	h.logger.Error("Failed to get order", zap.Error(err))
	h.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve order")
}
