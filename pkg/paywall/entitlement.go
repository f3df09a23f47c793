package paywall

import (
	"context"
	"fmt"
)

// GetMySubscription returns the user's most recently created subscription whose
// status grants access (active or trialing), or nil when there is none.
// Past-due and canceled rows are invisible here; use GetLatestSubscription to see them.
func (m *Manager) GetMySubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	if sub, ok := m.cache.Get(userID); ok {
		m.metrics().RecordCacheHit()
		return sub, nil
	}
	m.metrics().RecordCacheMiss()

	// The shared load must outlive any single caller; each caller stops
	// waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := m.loads.DoChan(userID, func() (interface{}, error) {
		return m.loadEntitlement(loadCtx, userID)
	})

	var v interface{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	}

	sub, _ := v.(*Subscription)
	if sub == nil {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (m *Manager) loadEntitlement(ctx context.Context, userID string) (*Subscription, error) {
	gen := m.cacheGeneration()
	subs, err := m.storage.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %s: %w", userID, err)
	}
	current := latest(subs, true)
	if m.config.CacheConfig != nil && m.config.CacheConfig.Enabled {
		m.cacheIfCurrent(userID, current, gen)
	}
	return current, nil
}

// GetLatestSubscription returns the user's most recently created subscription
// regardless of status, or nil when the user has none.
func (m *Manager) GetLatestSubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	subs, err := m.storage.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %s: %w", userID, err)
	}
	return latest(subs, false), nil
}

// HasAccess reports whether the user currently holds an active or trialing subscription
func (m *Manager) HasAccess(ctx context.Context, userID string) (bool, *Subscription, error) {
	sub, err := m.GetMySubscription(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	return sub != nil, sub, nil
}

// latest picks the newest row by CreatedAt; with accessOnly it only considers
// rows that grant access. Ties go to the lowest SubscriptionID.
func latest(subs []*Subscription, accessOnly bool) *Subscription {
	var best *Subscription
	for _, s := range subs {
		if s == nil || (accessOnly && !s.Status.GrantsAccess()) {
			continue
		}
		if best == nil || NewerThan(s, best) {
			best = s
		}
	}
	return best
}

// NewerThan orders subscriptions newest CreatedAt first, then by ascending SubscriptionID
func NewerThan(a, b *Subscription) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.SubscriptionID < b.SubscriptionID
}
