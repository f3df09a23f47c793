package paywall

import (
	"time"
)

// CheckoutStatus is the lifecycle state of a locally tracked checkout session
type CheckoutStatus string

const (
	CheckoutStatusPending  CheckoutStatus = "pending"
	CheckoutStatusComplete CheckoutStatus = "complete"
	CheckoutStatusExpired  CheckoutStatus = "expired"
)

// SubscriptionStatus is the normalized provider subscription status
type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// GrantsAccess reports whether a subscription in this status entitles its owner
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == StatusActive || s == StatusTrialing
}

// ParseSubscriptionStatus maps a provider status string onto the closed status set.
// Unknown values map to StatusIncomplete so they never grant access.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(raw) {
	case StatusIncomplete, StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled:
		return SubscriptionStatus(raw)
	}
	switch raw {
	case "incomplete_expired":
		return StatusCanceled
	case "paused":
		return StatusUnpaid
	default:
		return StatusIncomplete
	}
}

// CheckoutSession records a checkout flow opened on behalf of a user.
// UserID never changes after creation.
type CheckoutSession struct {
	SessionID      string         `json:"sessionId"`
	UserID         string         `json:"userId"`
	Status         CheckoutStatus `json:"status"`
	CustomerID     string         `json:"customerId,omitempty"`
	SubscriptionID string         `json:"subscriptionId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// Subscription is the local mirror of a provider subscription.
// Period bounds and CanceledAt are epoch milliseconds.
type Subscription struct {
	SubscriptionID     string             `json:"subscriptionId"`
	UserID             string             `json:"userId"`
	CustomerID         string             `json:"customerId"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart int64              `json:"currentPeriodStart"`
	CurrentPeriodEnd   int64              `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	CanceledAt         *int64             `json:"canceledAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// PaymentSettings is the administrator-selected product and price charged at checkout
type PaymentSettings struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	PriceID   string    `json:"priceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProviderSubscription is a subscription as reported by the billing provider.
// Timestamps are provider seconds.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	CanceledAt         *int64
}

// CheckoutRequest is sent to the provider to open a hosted checkout page
type CheckoutRequest struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutResult is the provider's answer to a CheckoutRequest
type CheckoutResult struct {
	SessionID   string
	RedirectURL string
}

// Ack describes how a webhook delivery was processed
type Ack struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Handled   bool   `json:"handled"`
}

// secondsToMillis converts provider seconds to epoch milliseconds
func secondsToMillis(s int64) int64 {
	return s * 1000
}
