package billing

import "time"

// WebhookEvent describes a delivery that was dispatched without error.
// It is passed to Config.WebhookCallback.
type WebhookEvent struct {
	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID is the provider's event id, stable across redeliveries
	EventID string

	// EventType is the provider-specific event type,
	// e.g. "checkout.session.completed" or "customer.subscription.deleted"
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// Handled is false when the event was acknowledged without a state change
	// (unhandled type, unknown session, unresolved customer)
	Handled bool
}
