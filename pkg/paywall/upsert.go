package paywall

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NewSubscription converts a provider subscription into its local form for userID,
// converting provider seconds into epoch milliseconds.
func NewSubscription(userID string, ps *ProviderSubscription, now time.Time) *Subscription {
	sub := &Subscription{
		SubscriptionID:     ps.ID,
		UserID:             userID,
		CustomerID:         ps.CustomerID,
		Status:             ParseSubscriptionStatus(ps.Status),
		CurrentPeriodStart: secondsToMillis(ps.CurrentPeriodStart),
		CurrentPeriodEnd:   secondsToMillis(ps.CurrentPeriodEnd),
		CancelAtPeriodEnd:  ps.CancelAtPeriodEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if ps.CanceledAt != nil {
		ms := secondsToMillis(*ps.CanceledAt)
		sub.CanceledAt = &ms
	}
	return sub
}

// UpsertSubscription inserts sub or, when a row with the same subscription id exists,
// overwrites its provider fields. The stored row is returned.
//
// The write is read-then-write with no recency check: whichever write commits last
// wins, even if it carries older provider state.
func (m *Manager) UpsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub == nil || sub.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrInvalidEvent)
	}
	now := m.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	existing, err := m.storage.GetSubscription(ctx, sub.SubscriptionID)
	switch {
	case err == nil:
		return m.patchSubscription(ctx, existing, sub)
	case errors.Is(err, ErrSubscriptionNotFound):
	default:
		return nil, fmt.Errorf("failed to read subscription %s: %w", sub.SubscriptionID, err)
	}

	if err := m.storage.InsertSubscription(ctx, sub); err != nil {
		if !errors.Is(err, ErrSubscriptionExists) {
			return nil, fmt.Errorf("failed to insert subscription %s: %w", sub.SubscriptionID, err)
		}
		// A concurrent delivery inserted first; apply ours on top of it.
		existing, err = m.storage.GetSubscription(ctx, sub.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read subscription %s: %w", sub.SubscriptionID, err)
		}
		return m.patchSubscription(ctx, existing, sub)
	}

	m.metrics().RecordSubscriptionWrite("insert")
	m.invalidate(sub.UserID)
	m.logger().Info("subscription inserted",
		Field{"subscription_id", sub.SubscriptionID},
		Field{"user_id", sub.UserID},
		Field{"status", string(sub.Status)},
	)
	return sub, nil
}

func (m *Manager) patchSubscription(ctx context.Context, existing, incoming *Subscription) (*Subscription, error) {
	patched := *existing
	patched.CustomerID = incoming.CustomerID
	patched.Status = incoming.Status
	patched.CurrentPeriodStart = incoming.CurrentPeriodStart
	patched.CurrentPeriodEnd = incoming.CurrentPeriodEnd
	patched.CancelAtPeriodEnd = incoming.CancelAtPeriodEnd
	patched.CanceledAt = incoming.CanceledAt
	patched.UpdatedAt = incoming.UpdatedAt

	if err := m.storage.UpdateSubscription(ctx, &patched); err != nil {
		return nil, fmt.Errorf("failed to update subscription %s: %w", patched.SubscriptionID, err)
	}

	m.metrics().RecordSubscriptionWrite("update")
	m.invalidate(patched.UserID)
	if incoming.UserID != "" && incoming.UserID != patched.UserID {
		m.invalidate(incoming.UserID)
		m.logger().Warn("subscription owner differs from resolved user; keeping stored owner",
			Field{"subscription_id", patched.SubscriptionID},
			Field{"stored_user_id", patched.UserID},
			Field{"resolved_user_id", incoming.UserID},
		)
	}
	m.logger().Debug("subscription updated",
		Field{"subscription_id", patched.SubscriptionID},
		Field{"status", string(patched.Status)},
	)
	return &patched, nil
}
