package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// ErrorDetail is the body of every error response:
// {"error":{"code":"...","message":"..."}}.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// requestError reports a malformed request rejected before reaching the
// service layer (bad id, missing body).
func requestError(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusUnprocessableEntity, "validation_error", message)
}

// writeError maps a service error onto an HTTP status.
// Not-found is checked first: a store failure caused by a missing record is
// still a 404.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, "not_found", unwrapMessage(err))
	case errors.Is(err, domain.ErrValidation):
		writeErrorBody(w, http.StatusUnprocessableEntity, "validation_error", unwrapMessage(err))
	case errors.Is(err, domain.ErrParse):
		writeErrorBody(w, http.StatusUnprocessableEntity, "parse_error", unwrapMessage(err))
	case errors.Is(err, domain.ErrConfig):
		writeErrorBody(w, http.StatusConflict, "config_error", unwrapMessage(err))
	case errors.Is(err, domain.ErrRateLimited):
		writeErrorBody(w, http.StatusServiceUnavailable, "rate_limited", unwrapMessage(err))
	case errors.Is(err, domain.ErrGeocode), errors.Is(err, domain.ErrRoute):
		writeErrorBody(w, http.StatusBadGateway, "routing_error", unwrapMessage(err))
	default:
		slog.Error("request failed", "error", err)
		writeErrorBody(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// unwrapMessage strips the "pkg.Type.Method: " call-site prefixes from a
// wrapped error, leaving the human-readable tail.
// e.g. "service.AddressService.SetHome: address is required: validation error"
// → "address is required: validation error"
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for {
		head, rest, ok := strings.Cut(msg, ": ")
		if !ok || strings.Count(head, ".") < 2 || strings.ContainsAny(head, " \"") {
			return msg
		}
		msg = rest
	}
}
