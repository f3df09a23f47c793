package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gopaywall/pkg/billing"
)

// Verify checks the Stripe-Signature header against the exact raw body and decodes the event.
// Signature problems (missing, malformed, stale or mismatched) wrap
// billing.ErrInvalidWebhookSignature; a correctly signed body that is not a Stripe event
// wraps billing.ErrInvalidWebhookPayload.
func Verify(rawBody []byte, signatureHeader, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing webhook secret", billing.ErrProviderNotConfigured)
	}

	if err := webhook.ValidatePayload(rawBody, signatureHeader, secret); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", billing.ErrInvalidWebhookSignature, err)
	}

	// The API version of the endpoint may lag the library; only the fields read below matter.
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", billing.ErrInvalidWebhookPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, fmt.Errorf("%w: event id and type are required", billing.ErrInvalidWebhookPayload)
	}
	return event, nil
}
