// Package gin provides Gin middleware that gates routes on an active subscription
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// SubscriptionKey is the gin context key holding the admitted *paywall.Subscription
const SubscriptionKey = "paywall.subscription"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the paywall manager instance
	Manager *paywall.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnPaymentRequired is called when the user has no active or trialing subscription.
	// If nil, returns 402 Payment Required JSON
	OnPaymentRequired func(c *gongin.Context)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the entitlement lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that requires an active subscription
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("gopaywall/gin: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("gopaywall/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		ok, sub, err := cfg.Manager.HasAccess(c.Request.Context(), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusServiceUnavailable, gongin.H{"error": "Service Unavailable"})
			}
			c.Abort()
			return
		}
		if !ok {
			if cfg.OnPaymentRequired != nil {
				cfg.OnPaymentRequired(c)
			} else {
				c.JSON(http.StatusPaymentRequired, gongin.H{
					"error":   "Payment Required",
					"message": "an active subscription is required",
				})
			}
			c.Abort()
			return
		}

		c.Set(SubscriptionKey, sub)
		c.Next()
	}
}

// SubscriptionFromContext returns the subscription admitted by Middleware
func SubscriptionFromContext(c *gongin.Context) (*paywall.Subscription, bool) {
	val, exists := c.Get(SubscriptionKey)
	if !exists {
		return nil, false
	}
	sub, ok := val.(*paywall.Subscription)
	return sub, ok && sub != nil
}

// Common extractors for convenience

// FromContext extracts user ID from Gin context
// Assumes authentication middleware has already set the user information via c.Set(key, userID).
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetString(key)
	}
}

// FromHeader extracts user ID from request header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}
