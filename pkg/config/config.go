// Package config loads application configuration from the environment.
//
// Values are resolved as: OS environment (highest), then an optional dotenv file,
// then struct defaults. Nested fields can be set either by their bare name
// (STRIPE_SECRET_KEY) or prefixed by their section (STRIPE_STRIPE_SECRET_KEY).
package config

import (
	"time"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Storage drivers
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
	DriverTiered    = "tiered"
)

// Config is the top-level application configuration
type Config struct {
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HTTPAddr         string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"gopaywall"`

	Stripe         StripeConfig
	Checkout       CheckoutConfig
	Storage        StorageConfig
	Cache          CacheConfig
	CircuitBreaker CircuitBreakerConfig
}

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// APIBaseURL points the client at stripe-mock or a proxy
	APIBaseURL string `envconfig:"STRIPE_API_BASE_URL" validate:"omitempty,url"`
}

// CheckoutConfig holds the redirect targets after hosted checkout
type CheckoutConfig struct {
	RedirectBaseURL string `envconfig:"CHECKOUT_REDIRECT_BASE_URL" validate:"required,url"`
	SuccessPath     string `envconfig:"CHECKOUT_SUCCESS_PATH"`
	CancelPath      string `envconfig:"CHECKOUT_CANCEL_PATH"`
}

// StorageConfig selects and configures the storage backend.
// The tiered driver uses Redis as the hot tier in front of Postgres.
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"memory" validate:"oneof=memory postgres redis firestore tiered"`

	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres,required_if=Driver tiered"`
	AutoMigrate bool   `envconfig:"DATABASE_AUTO_MIGRATE" default:"true"`

	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"paywall:"`

	FirestoreProjectID        string `envconfig:"FIRESTORE_PROJECT_ID" validate:"required_if=Driver firestore"`
	FirestoreCollectionPrefix string `envconfig:"FIRESTORE_COLLECTION_PREFIX" default:"paywall_"`
}

// CacheConfig configures the in-process entitlement cache
type CacheConfig struct {
	Enabled    bool          `envconfig:"CACHE_ENABLED" default:"false"`
	TTL        time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	MaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"1000" validate:"min=1"`
}

// CircuitBreakerConfig configures the storage circuit breaker
type CircuitBreakerConfig struct {
	Enabled          bool          `envconfig:"CIRCUIT_BREAKER_ENABLED" default:"false"`
	FailureThreshold uint32        `envconfig:"CIRCUIT_BREAKER_FAILURE_THRESHOLD" default:"5" validate:"min=1"`
	ResetTimeout     time.Duration `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30s"`
}

// PaywallConfig converts the checkout and cache sections into a paywall.Config
func (c *Config) PaywallConfig(logger paywall.Logger, metrics paywall.Metrics) paywall.Config {
	return paywall.Config{
		RedirectBaseURL: c.Checkout.RedirectBaseURL,
		SuccessPath:     c.Checkout.SuccessPath,
		CancelPath:      c.Checkout.CancelPath,
		CacheConfig: &paywall.CacheConfig{
			Enabled:    c.Cache.Enabled,
			TTL:        c.Cache.TTL,
			MaxEntries: c.Cache.MaxEntries,
		},
		Logger:  logger,
		Metrics: metrics,
	}
}

// CircuitBreakerSettings converts the circuit breaker section
func (c *Config) CircuitBreakerSettings() paywall.CircuitBreakerConfig {
	cb := paywall.DefaultCircuitBreakerConfig()
	cb.Name = "paywall-storage-" + c.Storage.Driver
	cb.FailureThreshold = c.CircuitBreaker.FailureThreshold
	if c.CircuitBreaker.ResetTimeout > 0 {
		cb.ResetTimeout = c.CircuitBreaker.ResetTimeout
	}
	return cb
}

// ErrorType categorizes configuration loading failures
type ErrorType string

const (
	// ErrDotenv indicates an explicitly named dotenv file could not be read
	ErrDotenv ErrorType = "DOTENV_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	ErrParsing ErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules
	ErrValidation ErrorType = "VALIDATION_FAILED"
)
