// Package echo provides Echo middleware that gates routes on an active subscription
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// SubscriptionKey is the echo context key holding the admitted *paywall.Subscription
const SubscriptionKey = "paywall.subscription"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the paywall manager instance
	Manager *paywall.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnPaymentRequired is called when the user has no active or trialing subscription.
	// If nil, returns 402 Payment Required JSON
	OnPaymentRequired func(c echo.Context) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the entitlement lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that requires an active subscription
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Manager == nil {
		panic("gopaywall/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("gopaywall/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			ok, sub, err := cfg.Manager.HasAccess(c.Request().Context(), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Service Unavailable"})
			}
			if !ok {
				if cfg.OnPaymentRequired != nil {
					return cfg.OnPaymentRequired(c)
				}
				return c.JSON(http.StatusPaymentRequired, map[string]string{
					"error":   "Payment Required",
					"message": "an active subscription is required",
				})
			}

			c.Set(SubscriptionKey, sub)
			return next(c)
		}
	}
}

// SubscriptionFromContext returns the subscription admitted by Middleware
func SubscriptionFromContext(c echo.Context) (*paywall.Subscription, bool) {
	sub, ok := c.Get(SubscriptionKey).(*paywall.Subscription)
	return sub, ok && sub != nil
}

// Common extractors for convenience

// FromContext extracts user ID from Echo context
// Assumes authentication middleware has already set the user information via c.Set(key, userID).
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if userID, ok := c.Get(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader extracts user ID from request header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}
