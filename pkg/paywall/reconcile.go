package paywall

import (
	"context"
	"errors"
	"fmt"
)

// Reconcile re-reads a subscription from the provider and writes it locally.
// It is the operator path for events that were dropped or lost.
//
// The owner is taken from userID when given, otherwise from the stored row, otherwise
// from the customer's checkout session. Unlike webhook handling, an unresolvable
// owner is returned as ErrUnresolvedCustomer.
func (m *Manager) Reconcile(ctx context.Context, subscriptionID, userID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrInvalidEvent)
	}

	ps, err := m.api.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to retrieve subscription %s: %w", ErrExternalAPI, subscriptionID, err)
	}

	if userID == "" {
		existing, err := m.storage.GetSubscription(ctx, subscriptionID)
		switch {
		case err == nil:
			userID = existing.UserID
		case errors.Is(err, ErrSubscriptionNotFound):
			userID, err = m.ResolveCustomer(ctx, ps.CustomerID)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("failed to read subscription %s: %w", subscriptionID, err)
		}
	}

	sub, err := m.UpsertSubscription(ctx, NewSubscription(userID, ps, m.now()))
	if err != nil {
		return nil, err
	}

	m.logger().Info("subscription reconciled",
		Field{"subscription_id", subscriptionID},
		Field{"user_id", sub.UserID},
		Field{"status", string(sub.Status)},
	)
	return sub, nil
}
