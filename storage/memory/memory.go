// Package memory provides an in-memory implementation of the paywall.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Storage implements paywall.Storage using in-memory maps
type Storage struct {
	mu            sync.RWMutex
	sessions      map[string]*paywall.CheckoutSession
	subscriptions map[string]*paywall.Subscription
	settings      []*paywall.PaymentSettings
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		sessions:      make(map[string]*paywall.CheckoutSession),
		subscriptions: make(map[string]*paywall.Subscription),
	}
}

// CreateCheckoutSession implements paywall.Storage
func (s *Storage) CreateCheckoutSession(_ context.Context, session *paywall.CheckoutSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("invalid checkout session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return paywall.ErrCheckoutSessionExists
	}
	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

// GetCheckoutSession implements paywall.Storage
func (s *Storage) GetCheckoutSession(_ context.Context, sessionID string) (*paywall.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// UpdateCheckoutSession implements paywall.Storage
func (s *Storage) UpdateCheckoutSession(_ context.Context, session *paywall.CheckoutSession) error {
	if session == nil {
		return fmt.Errorf("invalid checkout session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.SessionID]
	if !ok {
		return paywall.ErrCheckoutSessionNotFound
	}
	stored.Status = session.Status
	stored.CustomerID = session.CustomerID
	stored.SubscriptionID = session.SubscriptionID
	stored.CompletedAt = session.CompletedAt
	return nil
}

// FindCheckoutSessionByCustomer implements paywall.Storage
func (s *Storage) FindCheckoutSessionByCustomer(_ context.Context, customerID string) (*paywall.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first *paywall.CheckoutSession
	for _, session := range s.sessions {
		if customerID == "" || session.CustomerID != customerID {
			continue
		}
		if first == nil || session.CreatedAt.Before(first.CreatedAt) ||
			(session.CreatedAt.Equal(first.CreatedAt) && session.SessionID < first.SessionID) {
			first = session
		}
	}
	if first == nil {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	cp := *first
	return &cp, nil
}

// GetSubscription implements paywall.Storage
func (s *Storage) GetSubscription(_ context.Context, subscriptionID string) (*paywall.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, paywall.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

// InsertSubscription implements paywall.Storage
func (s *Storage) InsertSubscription(_ context.Context, sub *paywall.Subscription) error {
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.SubscriptionID]; exists {
		return paywall.ErrSubscriptionExists
	}
	s.subscriptions[sub.SubscriptionID] = copySubscription(sub)
	return nil
}

// UpdateSubscription implements paywall.Storage
func (s *Storage) UpdateSubscription(_ context.Context, sub *paywall.Subscription) error {
	if sub == nil {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.subscriptions[sub.SubscriptionID]
	if !ok {
		return paywall.ErrSubscriptionNotFound
	}
	updated := copySubscription(sub)
	updated.UserID = stored.UserID
	updated.CreatedAt = stored.CreatedAt
	s.subscriptions[sub.SubscriptionID] = updated
	return nil
}

// ListSubscriptionsByUser implements paywall.Storage
func (s *Storage) ListSubscriptionsByUser(_ context.Context, userID string) ([]*paywall.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*paywall.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			subs = append(subs, copySubscription(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return paywall.NewerThan(subs[i], subs[j])
	})
	return subs, nil
}

// GetPaymentSettings implements paywall.Storage
func (s *Storage) GetPaymentSettings(_ context.Context) (*paywall.PaymentSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.settings) == 0 {
		return nil, paywall.ErrPaymentSettingsNotConfigured
	}
	cp := *s.settings[0]
	return &cp, nil
}

// ReplacePaymentSettings implements paywall.Storage
func (s *Storage) ReplacePaymentSettings(_ context.Context, settings *paywall.PaymentSettings) error {
	if settings == nil {
		return fmt.Errorf("invalid payment settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *settings
	s.settings = []*paywall.PaymentSettings{&cp}
	return nil
}

// SubscriptionCount returns the number of stored subscriptions
func (s *Storage) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}

func copySubscription(sub *paywall.Subscription) *paywall.Subscription {
	cp := *sub
	if sub.CanceledAt != nil {
		v := *sub.CanceledAt
		cp.CanceledAt = &v
	}
	return &cp
}

var _ paywall.Storage = (*Storage)(nil)
