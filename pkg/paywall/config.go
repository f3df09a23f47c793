package paywall

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultSuccessPath is appended to RedirectBaseURL for successful checkouts.
	// {CHECKOUT_SESSION_ID} is substituted by the provider.
	DefaultSuccessPath = "/billing/success?session_id={CHECKOUT_SESSION_ID}"

	// DefaultCancelPath is appended to RedirectBaseURL for abandoned checkouts
	DefaultCancelPath = "/billing/cancel"

	// MetadataUserID is the checkout metadata key carrying the local user id
	MetadataUserID = "userId"
)

// Config configures a Manager
type Config struct {
	// RedirectBaseURL is the absolute base URL the provider redirects to after checkout
	RedirectBaseURL string

	// SuccessPath is appended to RedirectBaseURL on success (default: DefaultSuccessPath)
	SuccessPath string

	// CancelPath is appended to RedirectBaseURL on cancel (default: DefaultCancelPath)
	CancelPath string

	// CacheConfig configures the entitlement cache (default: disabled)
	CacheConfig *CacheConfig

	// Metrics is used for tracking billing synchronization (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// CacheConfig configures the in-process entitlement cache
type CacheConfig struct {
	// Enabled turns caching on
	Enabled bool

	// TTL is how long a user's entitlement stays cached (default: 30 seconds)
	TTL time.Duration

	// MaxEntries bounds the cache size (default: 1000)
	MaxEntries int
}

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.RedirectBaseURL == "" {
		return fmt.Errorf("%w: redirect base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.RedirectBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: redirect base URL must be absolute: %q", ErrInvalidConfig, c.RedirectBaseURL)
	}
	c.RedirectBaseURL = strings.TrimRight(c.RedirectBaseURL, "/")

	if c.SuccessPath == "" {
		c.SuccessPath = DefaultSuccessPath
	}
	if c.CancelPath == "" {
		c.CancelPath = DefaultCancelPath
	}
	if c.CacheConfig != nil && c.CacheConfig.Enabled {
		if c.CacheConfig.TTL < 0 {
			return fmt.Errorf("%w: cache TTL must not be negative", ErrInvalidConfig)
		}
		if c.CacheConfig.TTL == 0 {
			c.CacheConfig.TTL = 30 * time.Second
		}
		if c.CacheConfig.MaxEntries <= 0 {
			c.CacheConfig.MaxEntries = 1000
		}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// sameOrigin reports whether raw is an absolute URL on the redirect base URL's scheme and host
func (c *Config) sameOrigin(raw string) bool {
	base, err := url.Parse(c.RedirectBaseURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *Config) successURL() string {
	return c.RedirectBaseURL + c.SuccessPath
}

func (c *Config) cancelURL() string {
	return c.RedirectBaseURL + c.CancelPath
}
