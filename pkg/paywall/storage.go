package paywall

import (
	"context"
)

// Storage defines the interface for billing state persistence.
// Implementations must be safe for concurrent use.
type Storage interface {
	// CreateCheckoutSession stores a new session
	// Returns ErrCheckoutSessionExists if the session id is already stored
	CreateCheckoutSession(ctx context.Context, session *CheckoutSession) error

	// GetCheckoutSession retrieves a session by its provider id
	// Returns ErrCheckoutSessionNotFound if absent
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// UpdateCheckoutSession overwrites status, customer, subscription and completion time.
	// UserID and CreatedAt are never changed.
	// Returns ErrCheckoutSessionNotFound if absent
	UpdateCheckoutSession(ctx context.Context, session *CheckoutSession) error

	// FindCheckoutSessionByCustomer returns the earliest created session that recorded the customer
	// Returns ErrCheckoutSessionNotFound if no session carries the customer
	FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*CheckoutSession, error)

	// GetSubscription retrieves a subscription by its provider id
	// Returns ErrSubscriptionNotFound if absent
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// InsertSubscription stores a new subscription
	// Returns ErrSubscriptionExists if the subscription id is already stored
	InsertSubscription(ctx context.Context, sub *Subscription) error

	// UpdateSubscription overwrites the provider fields and UpdatedAt of a stored subscription.
	// UserID and CreatedAt are never changed.
	// Returns ErrSubscriptionNotFound if absent
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// ListSubscriptionsByUser returns every subscription owned by the user, newest CreatedAt
	// first; equal CreatedAt values are ordered by ascending SubscriptionID
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error)

	// GetPaymentSettings returns the current settings
	// Returns ErrPaymentSettingsNotConfigured if none are stored
	GetPaymentSettings(ctx context.Context) (*PaymentSettings, error)

	// ReplacePaymentSettings removes all stored settings and inserts the given one
	ReplacePaymentSettings(ctx context.Context, settings *PaymentSettings) error
}

// CheckoutAPI opens hosted checkout sessions at the billing provider
type CheckoutAPI interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error)
}

// SubscriptionsAPI reads subscriptions from the billing provider
type SubscriptionsAPI interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

// PortalAPI opens the provider's self-service customer portal
type PortalAPI interface {
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingAPI is the full set of provider calls the manager uses
type BillingAPI interface {
	CheckoutAPI
	SubscriptionsAPI
	PortalAPI
}
