package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"nexusswap/apps/swap/internal/liquidity"
	"nexusswap/apps/swap/internal/order"
)

// AdminHandler handles the operator endpoints
type AdminHandler struct {
	responder
	orders   *order.Manager
	settings *liquidity.Settings
}

func NewAdminHandler(orders *order.Manager, settings *liquidity.Settings, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		responder: responder{logger: logger},
		orders:    orders,
		settings:  settings,
	}
}

// ListOrders handles GET /api/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.orders.ListOrders())
}

// GetSummary handles GET /api/admin/summary
func (h *AdminHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.orders.GetSummary())
}

// OverrideStatus handles POST and PUT /api/admin/orders/{id}/status
func (h *AdminHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req StatusOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	updated, err := h.orders.OverrideStatus(id, req.Status, req.Reason)
	switch {
	case errors.Is(err, order.ErrInvalidStatus):
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, order.ErrOrderNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, order.ErrLogLimit):
		h.writeErrorResponse(w, http.StatusConflict, "log_limit_reached", "Order log is full, override rejected")
	case err != nil:
		h.logger.Error("Failed to override status", zap.String("order_id", id), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to override status")
	default:
		h.writeJSONResponse(w, http.StatusOK, updated)
	}
}

// GetLiquidity handles GET /api/admin/liquidity
func (h *AdminHandler) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.settings.Current().Masked())
}

// UpdateLiquidity handles PUT /api/admin/liquidity
func (h *AdminHandler) UpdateLiquidity(w http.ResponseWriter, r *http.Request) {
	var update liquidity.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	snapshot, err := h.settings.Update(update)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}

	h.logger.Info("Liquidity settings updated",
		zap.String("mode", string(snapshot.Mode)),
		zap.String("partner", snapshot.Partner.Name),
		zap.String("partner_base_url", snapshot.Partner.BaseURL))

	h.writeJSONResponse(w, http.StatusOK, snapshot.Masked())
}
