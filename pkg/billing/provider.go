// Package billing defines the provider-neutral surface a payment provider exposes to
// the application: a webhook endpoint that feeds the paywall Manager.
package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Provider is the interface a billing backend implements on top of paywall.Manager
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that receives provider notifications.
	// The implementation verifies, parses and dispatches them to the Manager.
	WebhookHandler() http.Handler

	// HandleWebhook runs the same pipeline as WebhookHandler on an already-read body.
	// Useful for frameworks that hand over the raw bytes themselves.
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*paywall.Ack, error)
}
