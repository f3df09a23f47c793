package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager receives every verified event
	Manager *paywall.Manager

	// WebhookSecret is used to verify incoming webhook signatures
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is optional; defaults to the Manager's logger contract with a no-op sink
	Logger paywall.Logger

	// WebhookCallback is called after an event was dispatched without error.
	// A callback error is logged and does not fail the delivery.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error
}
