// Package paywalltest provides fixtures for tests of packages built on the paywall Manager.
package paywalltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
	"github.com/mihaimyh/gopaywall/storage/memory"
)

// ErrNotImplemented is returned by every NopAPI call that has no canned answer
var ErrNotImplemented = errors.New("paywalltest: not implemented")

// NopAPI is a paywall.BillingAPI that never reaches a provider
type NopAPI struct{}

func (NopAPI) CreateCheckoutSession(context.Context, *paywall.CheckoutRequest) (*paywall.CheckoutResult, error) {
	return nil, ErrNotImplemented
}

func (NopAPI) RetrieveSubscription(context.Context, string) (*paywall.ProviderSubscription, error) {
	return nil, ErrNotImplemented
}

func (NopAPI) CreatePortalSession(context.Context, string, string) (string, error) {
	return "", ErrNotImplemented
}

// NewManager builds a Manager over storage (a fresh memory store when nil)
func NewManager(t testing.TB, storage paywall.Storage) *paywall.Manager {
	t.Helper()
	if storage == nil {
		storage = memory.New()
	}
	m, err := paywall.NewManager(storage, NopAPI{}, paywall.Config{RedirectBaseURL: "https://app.example.com"})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

// SeedSubscription stores a subscription with id "sub_<userID>" for the user
func SeedSubscription(t testing.TB, m *paywall.Manager, userID string, status paywall.SubscriptionStatus) *paywall.Subscription {
	t.Helper()
	now := time.Now().UTC()
	sub, err := m.UpsertSubscription(context.Background(), &paywall.Subscription{
		SubscriptionID: "sub_" + userID,
		UserID:         userID,
		CustomerID:     "cus_" + userID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
	return sub
}

// FailingStorage fails every subscription listing, as a storage outage would
type FailingStorage struct {
	*memory.Storage
	Err error
}

// NewFailingStorage wraps a fresh memory store
func NewFailingStorage() *FailingStorage {
	return &FailingStorage{Storage: memory.New(), Err: errors.New("connection refused")}
}

func (f *FailingStorage) ListSubscriptionsByUser(context.Context, string) ([]*paywall.Subscription, error) {
	return nil, f.Err
}
