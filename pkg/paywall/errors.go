package paywall

import "errors"

var (
	// ErrUnauthenticated is returned when an operation requires a user and none was given
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnresolvedCustomer is returned when no checkout session maps a customer to a user
	ErrUnresolvedCustomer = errors.New("unresolved customer")

	// ErrCheckoutSessionNotFound is returned when a checkout session does not exist
	ErrCheckoutSessionNotFound = errors.New("checkout session not found")

	// ErrCheckoutSessionExists is returned when creating a session id that is already stored
	ErrCheckoutSessionExists = errors.New("checkout session already exists")

	// ErrSubscriptionNotFound is returned when a subscription does not exist
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionExists is returned when inserting a subscription id that is already stored
	ErrSubscriptionExists = errors.New("subscription already exists")

	// ErrPaymentSettingsNotConfigured is returned when no product/price has been selected
	ErrPaymentSettingsNotConfigured = errors.New("payment settings not configured")

	// ErrExternalAPI wraps failures of the billing provider API
	ErrExternalAPI = errors.New("external billing API failure")

	// ErrInvalidConfig is returned for invalid manager configuration
	ErrInvalidConfig = errors.New("invalid config")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCircuitOpen is returned when the storage circuit breaker rejects a call
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNoCustomer is returned when a user has no known billing customer
	ErrNoCustomer = errors.New("no billing customer for user")

	// ErrInvalidReturnURL is returned when a portal return URL leaves the redirect base URL's origin
	ErrInvalidReturnURL = errors.New("invalid return URL")

	// ErrInvalidEvent is returned when dispatching a nil or malformed event
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidPaymentSettings is returned when product or price is missing
	ErrInvalidPaymentSettings = errors.New("invalid payment settings")
)
