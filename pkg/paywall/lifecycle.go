package paywall

import (
	"context"
	"errors"
)

// applySubscription writes a created/updated subscription for the user that owns its customer.
// Events whose customer cannot be resolved are logged and dropped for good.
func (m *Manager) applySubscription(ctx context.Context, e Event, ps *ProviderSubscription) (outcome, error) {
	userID, err := m.ResolveCustomer(ctx, ps.CustomerID)
	if err != nil {
		if errors.Is(err, ErrUnresolvedCustomer) {
			m.dropUnresolved(e, ps)
			return outcomeDropped, nil
		}
		return "", err
	}

	if _, err := m.UpsertSubscription(ctx, NewSubscription(userID, ps, m.now())); err != nil {
		return "", err
	}
	return outcomeHandled, nil
}

// cancelSubscription marks a subscription canceled. CanceledAt defaults to now when
// the provider did not report one.
func (m *Manager) cancelSubscription(ctx context.Context, e *SubscriptionDeleted) (outcome, error) {
	ps := e.Subscription
	userID, err := m.ResolveCustomer(ctx, ps.CustomerID)
	if err != nil {
		if errors.Is(err, ErrUnresolvedCustomer) {
			m.dropUnresolved(e, &ps)
			return outcomeDropped, nil
		}
		return "", err
	}

	now := m.now()
	sub := NewSubscription(userID, &ps, now)
	sub.Status = StatusCanceled
	sub.CancelAtPeriodEnd = false
	if sub.CanceledAt == nil {
		ms := now.UnixMilli()
		sub.CanceledAt = &ms
	}

	if _, err := m.UpsertSubscription(ctx, sub); err != nil {
		return "", err
	}
	return outcomeHandled, nil
}

func (m *Manager) dropUnresolved(e Event, ps *ProviderSubscription) {
	m.metrics().RecordUnresolvedCustomer(e.EventType())
	m.logger().Warn("dropping subscription event for unresolved customer",
		eventFields(e,
			Field{"customer_id", ps.CustomerID},
			Field{"subscription_id", ps.ID},
		)...)
}
