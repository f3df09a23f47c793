// Package fiber provides Fiber middleware that gates routes on an active subscription
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// SubscriptionKey is the fiber Locals key holding the admitted *paywall.Subscription
const SubscriptionKey = "paywall.subscription"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Manager is the paywall manager instance
	Manager *paywall.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnPaymentRequired is called when the user has no active or trialing subscription.
	// If nil, returns 402 Payment Required JSON
	OnPaymentRequired func(c *fiber.Ctx) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the entitlement lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that requires an active subscription
func Middleware(cfg Config) fiber.Handler {
	if cfg.Manager == nil {
		panic("gopaywall/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("gopaywall/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		ok, sub, err := cfg.Manager.HasAccess(c.UserContext(), userID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service Unavailable"})
		}
		if !ok {
			if cfg.OnPaymentRequired != nil {
				return cfg.OnPaymentRequired(c)
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "Payment Required",
				"message": "an active subscription is required",
			})
		}

		c.Locals(SubscriptionKey, sub)
		return c.Next()
	}
}

// SubscriptionFromContext returns the subscription admitted by Middleware
func SubscriptionFromContext(c *fiber.Ctx) (*paywall.Subscription, bool) {
	sub, ok := c.Locals(SubscriptionKey).(*paywall.Subscription)
	return sub, ok && sub != nil
}

// Common extractors for convenience

// FromContext extracts user ID from Fiber context
// Assumes authentication middleware has already set the user information via c.Locals(key, userID).
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if userID, ok := val.(string); ok {
				return userID
			}
		}
		return ""
	}
}

// FromHeader extracts user ID from request header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}
