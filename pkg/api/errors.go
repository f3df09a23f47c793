package api

import (
	"errors"
	"net/http"

	"github.com/mihaimyh/gopaywall/internal/httputil"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// writeManagerError maps Manager errors to HTTP responses
func (h *Handler) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, paywall.ErrUnauthenticated):
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, paywall.ErrPaymentSettingsNotConfigured):
		httputil.WriteError(w, http.StatusServiceUnavailable, "payment_settings_not_configured", "payments are not configured")
	case errors.Is(err, paywall.ErrNoCustomer):
		httputil.WriteError(w, http.StatusNotFound, "no_customer", "no billing customer for this user")
	case errors.Is(err, paywall.ErrInvalidPaymentSettings), errors.Is(err, paywall.ErrInvalidReturnURL):
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, paywall.ErrExternalAPI):
		h.logger.Error("billing provider call failed", paywall.Field{Key: "path", Value: r.URL.Path}, paywall.Field{Key: "error", Value: err.Error()})
		httputil.WriteError(w, http.StatusBadGateway, "provider_error", "billing provider request failed")
	case errors.Is(err, paywall.ErrCircuitOpen), errors.Is(err, paywall.ErrStorageUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", "billing storage unavailable")
	default:
		h.logger.Error("billing request failed", paywall.Field{Key: "path", Value: r.URL.Path}, paywall.Field{Key: "error", Value: err.Error()})
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
