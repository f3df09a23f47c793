package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/gopaywall/internal/httputil"
	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// WebhookHandler returns the HTTP handler for Stripe webhooks.
// Inbound deliveries are not rate limited; Stripe retries anything that is not a 2xx.
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	httputil.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "webhooks must be POSTed")
		return
	}

	sig := r.Header.Get(headerSignature)
	if sig == "" {
		p.metrics.RecordWebhookError(providerName, "missing_signature")
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing Stripe-Signature header")
		return
	}

	// Read and validate body (with size limit protection)
	body, err := httputil.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
		} else {
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
			httputil.WriteError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		}
		return
	}

	if _, err := p.HandleWebhook(r.Context(), body, sig); err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidWebhookSignature):
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		case errors.Is(err, billing.ErrInvalidWebhookPayload):
			httputil.WriteError(w, http.StatusBadRequest, "invalid_payload", "malformed event")
		default:
			// Non-2xx makes Stripe redeliver; handlers are idempotent.
			httputil.WriteError(w, http.StatusInternalServerError, "processing_error", "failed to process webhook")
		}
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// HandleWebhook verifies, parses and dispatches one delivery
func (p *Provider) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*paywall.Ack, error) {
	start := time.Now()

	event, err := Verify(rawBody, signatureHeader, p.webhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			p.metrics.RecordWebhookError(providerName, "auth_failed")
			p.logger.Warn("rejected webhook with invalid signature", paywall.Field{Key: "error", Value: err.Error()})
		} else {
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return nil, err
	}

	eventType := string(event.Type)
	parsed, err := ParseEvent(event)
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		p.logger.Warn("rejected malformed webhook event",
			paywall.Field{Key: "event_id", Value: event.ID},
			paywall.Field{Key: "event_type", Value: eventType},
			paywall.Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	ack, err := p.manager.Dispatch(ctx, parsed)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(start))
	if err != nil {
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		return nil, fmt.Errorf("failed to process %s event %s: %w", eventType, event.ID, err)
	}

	status := "skipped"
	if ack.Handled {
		status = "handled"
	}
	p.metrics.RecordWebhookEvent(providerName, eventType, status)

	p.notify(ctx, billing.WebhookEvent{
		Provider:       providerName,
		EventID:        event.ID,
		EventType:      eventType,
		EventTimestamp: time.Unix(event.Created, 0).UTC(),
		Handled:        ack.Handled,
	})
	return ack, nil
}

// notify runs the optional callback. Its failure never fails the delivery.
func (p *Provider) notify(ctx context.Context, event billing.WebhookEvent) {
	if p.config.WebhookCallback == nil {
		return
	}
	if err := p.config.WebhookCallback(ctx, event); err != nil {
		p.logger.Error("webhook callback failed",
			paywall.Field{Key: "event_id", Value: event.EventID},
			paywall.Field{Key: "event_type", Value: event.EventType},
			paywall.Field{Key: "error", Value: err.Error()},
		)
	}
}
