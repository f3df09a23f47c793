package paywall

import (
	"context"
	"errors"
	"fmt"
)

// CreateCheckout opens a provider-hosted subscription checkout for the user and
// returns the URL to redirect them to. The pending session is only stored once the
// provider has accepted the request.
func (m *Manager) CreateCheckout(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}

	// 1. Resolve what to charge
	settings, err := m.storage.GetPaymentSettings(ctx)
	if err != nil {
		if errors.Is(err, ErrPaymentSettingsNotConfigured) {
			m.metrics().RecordCheckout("not_configured")
			return "", err
		}
		m.metrics().RecordCheckout("storage_error")
		return "", fmt.Errorf("failed to load payment settings: %w", err)
	}

	// 2. Ask the provider for a session
	res, err := m.api.CreateCheckoutSession(ctx, &CheckoutRequest{
		PriceID:    settings.PriceID,
		SuccessURL: m.config.successURL(),
		CancelURL:  m.config.cancelURL(),
		Metadata:   map[string]string{MetadataUserID: userID},
	})
	if err != nil {
		m.metrics().RecordCheckout("api_error")
		m.logger().Error("checkout session creation failed",
			Field{"user_id", userID},
			Field{"price_id", settings.PriceID},
			Field{"error", err.Error()},
		)
		return "", fmt.Errorf("%w: failed to create checkout session: %w", ErrExternalAPI, err)
	}
	if res == nil || res.SessionID == "" || res.RedirectURL == "" {
		m.metrics().RecordCheckout("api_error")
		return "", fmt.Errorf("%w: provider returned an incomplete checkout session", ErrExternalAPI)
	}

	// 3. Record the pending session
	session := &CheckoutSession{
		SessionID: res.SessionID,
		UserID:    userID,
		Status:    CheckoutStatusPending,
		CreatedAt: m.now(),
	}
	if err := m.storage.CreateCheckoutSession(ctx, session); err != nil {
		m.metrics().RecordCheckout("storage_error")
		return "", fmt.Errorf("failed to store checkout session %s: %w", res.SessionID, err)
	}

	m.metrics().RecordCheckout("created")
	m.logger().Info("checkout session created",
		Field{"user_id", userID},
		Field{"session_id", res.SessionID},
	)
	return res.RedirectURL, nil
}

// CreatePortalSession opens the provider's self-service portal for the customer behind
// the user's latest subscription. An empty returnURL falls back to the redirect base URL;
// any other must share its scheme and host.
func (m *Manager) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}
	if returnURL != "" && !m.config.sameOrigin(returnURL) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReturnURL, returnURL)
	}

	latest, err := m.GetLatestSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if latest == nil || latest.CustomerID == "" {
		return "", ErrNoCustomer
	}
	if returnURL == "" {
		returnURL = m.config.RedirectBaseURL
	}

	url, err := m.api.CreatePortalSession(ctx, latest.CustomerID, returnURL)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create portal session: %w", ErrExternalAPI, err)
	}
	return url, nil
}
