// Package stripe connects Stripe to the paywall Manager: an API client for checkout,
// subscription reads and the customer portal, and the signed webhook endpoint.
package stripe

import (
	"strings"
	"time"

	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

const (
	providerName        = "stripe"
	defaultHTTPTimeout  = 10 * time.Second
	maxWebhookBodyBytes = 256 * 1024
	headerSignature     = "Stripe-Signature"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Manager, WebhookSecret, Metrics, etc.)
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	manager       *paywall.Manager
	webhookSecret string
	metrics       billing.Metrics
	logger        paywall.Logger
	config        Config
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	webhookSecret := strings.TrimSpace(config.WebhookSecret)
	if webhookSecret == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &paywall.NoopLogger{}
	}

	return &Provider{
		manager:       config.Manager,
		webhookSecret: webhookSecret,
		metrics:       metrics,
		logger:        logger,
		config:        config,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}
