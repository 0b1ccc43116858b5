package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps the error taxonomy to HTTP statuses. Taxonomy messages are
// user-safe by construction; anything unmapped gets a generic 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, security.ErrUnauthenticated):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	case errors.Is(err, security.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	case errors.Is(err, security.ErrPermissionDenied):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, security.ErrValidationFailed):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "resource not found")
	case errors.Is(err, security.ErrUpstreamUnavailable):
		httpError(w, http.StatusBadGateway, "api_error", "failed to process message")
	default:
		httpError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
