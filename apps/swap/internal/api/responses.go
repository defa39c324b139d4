package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// responder is shared by all handlers.
type responder struct {
	logger *zap.Logger
}

// writeJSONResponse writes a JSON response with the specified status code
func (h responder) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h responder) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
