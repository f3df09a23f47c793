package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

const (
	endpointCheckoutSessions = "/v1/checkout/sessions"
	endpointSubscriptions    = "/v1/subscriptions"
	endpointPortalSessions   = "/v1/billing_portal/sessions"
)

// ClientConfig configures the outbound Stripe API client
type ClientConfig struct {
	APIKey string

	// HTTPClient is optional; defaults to a client with a 10s timeout
	HTTPClient *http.Client

	// BackendURL overrides the Stripe API base URL (stripe-mock, tests)
	BackendURL string

	// MaxNetworkRetries is passed to stripe-go; nil keeps the library default
	MaxNetworkRetries *int64

	Metrics billing.Metrics
}

// Client implements paywall.BillingAPI on the Stripe API
type Client struct {
	sc      *stripe.Client
	metrics billing.Metrics
}

var _ paywall.BillingAPI = (*Client)(nil)

// NewClient creates a Stripe API client
func NewClient(config ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Stripe API key", billing.ErrProviderNotConfigured)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: config.MaxNetworkRetries,
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(config.BackendURL, "/"))
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Client{
		sc:      stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig))),
		metrics: metrics,
	}, nil
}

// CreateCheckoutSession opens a subscription-mode Checkout Session.
// The request metadata is attached to both the session and the subscription it creates,
// and the user id doubles as the client reference id.
func (c *Client) CreateCheckoutSession(ctx context.Context, req *paywall.CheckoutRequest) (*paywall.CheckoutResult, error) {
	userID := req.Metadata[paywall.MetadataUserID]
	if userID == "" {
		return nil, billing.ErrMissingUserID
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
		params.SubscriptionData.AddMetadata(k, v)
	}

	var session *stripe.CheckoutSession
	err := c.call(endpointCheckoutSessions, func() (err error) {
		session, err = c.sc.V1CheckoutSessions.Create(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &paywall.CheckoutResult{SessionID: session.ID, RedirectURL: session.URL}, nil
}

// RetrieveSubscription fetches the current state of a subscription
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*paywall.ProviderSubscription, error) {
	var sub *stripe.Subscription
	err := c.call(endpointSubscriptions, func() (err error) {
		sub, err = c.sc.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	ps := toProviderSubscription(sub)
	return &ps, nil
}

// CreatePortalSession opens a Customer Portal session and returns its URL
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	var session *stripe.BillingPortalSession
	err := c.call(endpointPortalSessions, func() (err error) {
		session, err = c.sc.V1BillingPortalSessions.Create(ctx, params)
		return err
	})
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

// call runs fn and records its outcome against endpoint
func (c *Client) call(endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	if err != nil {
		c.metrics.RecordAPICall(providerName, endpoint, "error")
		return fmt.Errorf("%w: %s: %w", billing.ErrProviderAPIError, endpoint, err)
	}
	c.metrics.RecordAPICall(providerName, endpoint, "success")
	return nil
}
