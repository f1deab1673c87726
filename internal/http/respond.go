package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/logging"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError converts a service error to an HTTP status and code.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var httpStatus int
	var code, details string

	var checkoutErr *domain.CheckoutError
	switch {
	case errors.As(err, &checkoutErr):
		httpStatus = http.StatusInternalServerError
		code = "checkout_failed"
		details = checkoutErr.Step
	case errors.Is(err, domain.ErrValidation):
		httpStatus = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, domain.ErrUnauthorized):
		httpStatus = http.StatusUnauthorized
		code = "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, domain.ErrPersistence):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	message := err.Error()
	if httpStatus >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.String("code", code), zap.Error(err))
		if checkoutErr == nil {
			message = http.StatusText(httpStatus)
		}
	}
	respondError(w, httpStatus, code, message, details)
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", "")
		return false
	}
	return true
}
