package paywall

import (
	"context"
	"errors"
	"fmt"
)

// completeCheckout finalizes a locally initiated checkout session and eagerly stores
// its subscription, so a lifecycle event that races ahead of this one cannot leave
// the user without a row.
func (m *Manager) completeCheckout(ctx context.Context, e *CheckoutSessionCompleted) (outcome, error) {
	session, err := m.storage.GetCheckoutSession(ctx, e.SessionID)
	if err != nil {
		if errors.Is(err, ErrCheckoutSessionNotFound) {
			m.logger().Warn("checkout completed for unknown session",
				eventFields(e, Field{"session_id", e.SessionID}, Field{"customer_id", e.CustomerID})...)
			return outcomeDropped, nil
		}
		return "", fmt.Errorf("failed to load checkout session %s: %w", e.SessionID, err)
	}

	if session.Status == CheckoutStatusComplete {
		m.logger().Debug("checkout session already complete",
			eventFields(e, Field{"session_id", e.SessionID})...)
	} else {
		now := m.now()
		session.Status = CheckoutStatusComplete
		session.CustomerID = e.CustomerID
		if e.SubscriptionID != "" {
			session.SubscriptionID = e.SubscriptionID
		}
		session.CompletedAt = &now
		if err := m.storage.UpdateCheckoutSession(ctx, session); err != nil {
			return "", fmt.Errorf("failed to complete checkout session %s: %w", e.SessionID, err)
		}
		m.logger().Info("checkout session completed",
			eventFields(e,
				Field{"session_id", e.SessionID},
				Field{"user_id", session.UserID},
				Field{"customer_id", e.CustomerID},
			)...)
	}

	if e.SubscriptionID == "" {
		return outcomeHandled, nil
	}
	if err := m.enrichSubscription(ctx, e, session.UserID); err != nil {
		return "", err
	}
	return outcomeHandled, nil
}

// enrichSubscription fetches the checkout's subscription from the provider and upserts it.
// Provider failures are logged and swallowed; the session stays complete and a later
// lifecycle event is expected to fill the row in. Storage failures are returned.
func (m *Manager) enrichSubscription(ctx context.Context, e *CheckoutSessionCompleted, userID string) error {
	ps, err := m.api.RetrieveSubscription(ctx, e.SubscriptionID)
	if err != nil {
		m.metrics().RecordEnrichment("error")
		m.logger().Error("subscription enrichment failed",
			eventFields(e,
				Field{"subscription_id", e.SubscriptionID},
				Field{"user_id", userID},
				Field{"error", err.Error()},
			)...)
		return nil
	}
	m.metrics().RecordEnrichment("success")

	if ps.CustomerID == "" {
		ps.CustomerID = e.CustomerID
	}
	if _, err := m.UpsertSubscription(ctx, NewSubscription(userID, ps, m.now())); err != nil {
		return err
	}
	return nil
}
