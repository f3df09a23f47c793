package api

import "github.com/mihaimyh/gopaywall/pkg/paywall"

// SubscriptionResponse is returned by the subscription endpoints.
// Subscription is null when the user has none.
type SubscriptionResponse struct {
	Subscription *paywall.Subscription `json:"subscription"`
	Active       bool                  `json:"active"`
}

// RedirectResponse carries a provider-hosted URL the client should navigate to
type RedirectResponse struct {
	URL string `json:"url"`
}

// PortalRequest is the optional body of the portal endpoint
type PortalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"omitempty,url"`
}

// PaymentSettingsRequest replaces the configured product and price
type PaymentSettingsRequest struct {
	ProductID string `json:"productId" validate:"required,max=255"`
	PriceID   string `json:"priceId" validate:"required,max=255"`
}
