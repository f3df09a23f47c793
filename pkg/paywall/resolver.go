package paywall

import (
	"context"
	"errors"
	"fmt"
)

// ResolveCustomer maps a provider customer id to the local user whose checkout
// session first recorded it. Returns ErrUnresolvedCustomer when no session carries
// the customer yet.
func (m *Manager) ResolveCustomer(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrUnresolvedCustomer
	}

	session, err := m.storage.FindCheckoutSessionByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrCheckoutSessionNotFound) {
			return "", ErrUnresolvedCustomer
		}
		return "", fmt.Errorf("failed to resolve customer %s: %w", customerID, err)
	}
	return session.UserID, nil
}
