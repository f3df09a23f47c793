package paywall

import "time"

// Event is a verified, parsed provider notification.
// The set of implementations is closed; providers translate anything they do not
// model into *UnhandledEvent.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

// EventMeta carries the provider envelope shared by all events
type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (m EventMeta) isEvent()          {}

// CheckoutSessionCompleted is emitted when a hosted checkout finishes.
// SubscriptionID is empty for non-subscription checkouts.
type CheckoutSessionCompleted struct {
	EventMeta
	SessionID      string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionUpdated is emitted when a subscription is created or changes
type SubscriptionUpdated struct {
	EventMeta
	Subscription ProviderSubscription
}

// SubscriptionDeleted is emitted when a subscription ends
type SubscriptionDeleted struct {
	EventMeta
	Subscription ProviderSubscription
}

// UnhandledEvent is any provider event type without a modeled variant
type UnhandledEvent struct {
	EventMeta
}
