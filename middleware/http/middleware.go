// Package http provides net/http middleware that gates routes on an active subscription
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

type contextKey struct{}

// Config holds middleware configuration
type Config struct {
	// Manager is the paywall manager instance
	Manager *paywall.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// OnPaymentRequired is called when the user has no active or trialing subscription.
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(w http.ResponseWriter, r *http.Request)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the entitlement lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that requires an active subscription.
// The subscription is available to the wrapped handler via SubscriptionFromContext.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("gopaywall/http: Config.Manager is required")
	}
	if config.GetUserID == nil {
		panic("gopaywall/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				}
				return
			}

			ok, sub, err := config.Manager.HasAccess(r.Context(), userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service Unavailable"})
				}
				return
			}
			if !ok {
				if config.OnPaymentRequired != nil {
					config.OnPaymentRequired(w, r)
				} else {
					writeJSON(w, http.StatusPaymentRequired, map[string]string{
						"error":   "Payment Required",
						"message": "an active subscription is required",
					})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, sub)))
		})
	}
}

// HandlerFunc creates an HTTP middleware that requires an active subscription (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// SubscriptionFromContext returns the subscription admitted by Middleware
func SubscriptionFromContext(ctx context.Context) (*paywall.Subscription, bool) {
	sub, ok := ctx.Value(contextKey{}).(*paywall.Subscription)
	return sub, ok && sub != nil
}

// Common extractors for convenience

// FromHeader extracts user ID from a request header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext extracts user ID from a context value set by an auth middleware
func FromContext(key interface{}) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
