// Package storagetest provides a behavioral test suite shared by every paywall.Storage backend.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Factory returns an empty storage for one subtest
type Factory func(t *testing.T) paywall.Storage

// Run executes the suite against storages produced by newStorage
func Run(t *testing.T, newStorage Factory) {
	t.Run("CheckoutSessionLifecycle", func(t *testing.T) { testCheckoutSessionLifecycle(t, newStorage(t)) })
	t.Run("CheckoutSessionDuplicate", func(t *testing.T) { testCheckoutSessionDuplicate(t, newStorage(t)) })
	t.Run("FindByCustomerEarliest", func(t *testing.T) { testFindByCustomerEarliest(t, newStorage(t)) })
	t.Run("SubscriptionInsertUpdate", func(t *testing.T) { testSubscriptionInsertUpdate(t, newStorage(t)) })
	t.Run("SubscriptionUniqueness", func(t *testing.T) { testSubscriptionUniqueness(t, newStorage(t)) })
	t.Run("ListByUserNewestFirst", func(t *testing.T) { testListByUserNewestFirst(t, newStorage(t)) })
	t.Run("ListByUserTiesByID", func(t *testing.T) { testListByUserTiesByID(t, newStorage(t)) })
	t.Run("PaymentSettingsReplace", func(t *testing.T) { testPaymentSettingsReplace(t, newStorage(t)) })
}

// base is a fixed, millisecond-truncated instant so round trips through any backend compare equal
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testCheckoutSessionLifecycle(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	_, err := s.GetCheckoutSession(ctx, "cs_missing")
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionNotFound)

	err = s.UpdateCheckoutSession(ctx, &paywall.CheckoutSession{SessionID: "cs_missing", Status: paywall.CheckoutStatusComplete})
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionNotFound)

	require.NoError(t, s.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_1",
		UserID:    "u1",
		Status:    paywall.CheckoutStatusPending,
		CreatedAt: base,
	}))

	got, err := s.GetCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, paywall.CheckoutStatusPending, got.Status)
	assert.Empty(t, got.CustomerID)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, base.Equal(got.CreatedAt))

	completed := base.Add(time.Minute)
	require.NoError(t, s.UpdateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID:      "cs_1",
		UserID:         "someone-else",
		Status:         paywall.CheckoutStatusComplete,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		CompletedAt:    &completed,
	}))

	got, err = s.GetCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID, "owner must not change")
	assert.Equal(t, paywall.CheckoutStatusComplete, got.Status)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
}

func testCheckoutSessionDuplicate(t *testing.T, s paywall.Storage) {
	ctx := context.Background()
	session := &paywall.CheckoutSession{SessionID: "cs_dup", UserID: "u1", Status: paywall.CheckoutStatusPending, CreatedAt: base}

	require.NoError(t, s.CreateCheckoutSession(ctx, session))
	err := s.CreateCheckoutSession(ctx, &paywall.CheckoutSession{SessionID: "cs_dup", UserID: "u2", Status: paywall.CheckoutStatusPending, CreatedAt: base})
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionExists)

	got, err := s.GetCheckoutSession(ctx, "cs_dup")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func testFindByCustomerEarliest(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	_, err := s.FindCheckoutSessionByCustomer(ctx, "cus_1")
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionNotFound)

	for i, owner := range []string{"u_late", "u_early"} {
		id := fmt.Sprintf("cs_%d", i)
		created := base.Add(time.Duration(1-i) * time.Hour)
		require.NoError(t, s.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
			SessionID: id, UserID: owner, Status: paywall.CheckoutStatusPending, CreatedAt: created,
		}))
		completed := created.Add(time.Minute)
		require.NoError(t, s.UpdateCheckoutSession(ctx, &paywall.CheckoutSession{
			SessionID: id, Status: paywall.CheckoutStatusComplete, CustomerID: "cus_1", CompletedAt: &completed,
		}))
	}
	// A pending session without a customer must never match.
	require.NoError(t, s.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_pending", UserID: "u_other", Status: paywall.CheckoutStatusPending, CreatedAt: base.Add(-2 * time.Hour),
	}))

	got, err := s.FindCheckoutSessionByCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "u_early", got.UserID)

	_, err = s.FindCheckoutSessionByCustomer(ctx, "cus_other")
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionNotFound)
}

func testSubscriptionInsertUpdate(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	_, err := s.GetSubscription(ctx, "sub_1")
	assert.ErrorIs(t, err, paywall.ErrSubscriptionNotFound)

	err = s.UpdateSubscription(ctx, &paywall.Subscription{SubscriptionID: "sub_1"})
	assert.ErrorIs(t, err, paywall.ErrSubscriptionNotFound)

	require.NoError(t, s.InsertSubscription(ctx, &paywall.Subscription{
		SubscriptionID:     "sub_1",
		UserID:             "u1",
		CustomerID:         "cus_1",
		Status:             paywall.StatusActive,
		CurrentPeriodStart: 1000000,
		CurrentPeriodEnd:   2000000,
		CreatedAt:          base,
		UpdatedAt:          base,
	}))

	got, err := s.GetSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, paywall.StatusActive, got.Status)
	assert.Equal(t, int64(1000000), got.CurrentPeriodStart)
	assert.Equal(t, int64(2000000), got.CurrentPeriodEnd)
	assert.False(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.CanceledAt)

	canceledAt := int64(1500000)
	updated := base.Add(time.Hour)
	require.NoError(t, s.UpdateSubscription(ctx, &paywall.Subscription{
		SubscriptionID:     "sub_1",
		UserID:             "u_ignored",
		CustomerID:         "cus_1",
		Status:             paywall.StatusCanceled,
		CurrentPeriodStart: 1000000,
		CurrentPeriodEnd:   2000000,
		CanceledAt:         &canceledAt,
		CreatedAt:          updated,
		UpdatedAt:          updated,
	}))

	got, err = s.GetSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID, "owner must not change")
	assert.True(t, base.Equal(got.CreatedAt), "created at must not change")
	assert.True(t, updated.Equal(got.UpdatedAt))
	assert.Equal(t, paywall.StatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.Equal(t, canceledAt, *got.CanceledAt)
}

func testSubscriptionUniqueness(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		exists   int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertSubscription(ctx, &paywall.Subscription{
				SubscriptionID: "sub_race",
				UserID:         "u1",
				CustomerID:     "cus_1",
				Status:         paywall.StatusActive,
				CreatedAt:      base,
				UpdatedAt:      base,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case assert.ErrorIs(t, err, paywall.ErrSubscriptionExists):
				exists++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, writers-1, exists)

	subs, err := s.ListSubscriptionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func testListByUserNewestFirst(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	subs, err := s.ListSubscriptionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	for i, status := range []paywall.SubscriptionStatus{paywall.StatusCanceled, paywall.StatusActive, paywall.StatusPastDue} {
		created := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InsertSubscription(ctx, &paywall.Subscription{
			SubscriptionID: fmt.Sprintf("sub_%d", i),
			UserID:         "u1",
			CustomerID:     "cus_1",
			Status:         status,
			CreatedAt:      created,
			UpdatedAt:      created,
		}))
	}
	require.NoError(t, s.InsertSubscription(ctx, &paywall.Subscription{
		SubscriptionID: "sub_other", UserID: "u2", CustomerID: "cus_2", Status: paywall.StatusActive, CreatedAt: base, UpdatedAt: base,
	}))

	subs, err = s.ListSubscriptionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "sub_2", subs[0].SubscriptionID)
	assert.Equal(t, "sub_1", subs[1].SubscriptionID)
	assert.Equal(t, "sub_0", subs[2].SubscriptionID)
}

func testListByUserTiesByID(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	for _, id := range []string{"sub_c", "sub_a", "sub_d", "sub_b"} {
		require.NoError(t, s.InsertSubscription(ctx, &paywall.Subscription{
			SubscriptionID: id, UserID: "u1", CustomerID: "cus_1", Status: paywall.StatusActive, CreatedAt: base, UpdatedAt: base,
		}))
	}

	for i := 0; i < 3; i++ {
		subs, err := s.ListSubscriptionsByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, subs, 4)
		ids := make([]string, len(subs))
		for j, sub := range subs {
			ids[j] = sub.SubscriptionID
		}
		assert.Equal(t, []string{"sub_a", "sub_b", "sub_c", "sub_d"}, ids)
	}
}

func testPaymentSettingsReplace(t *testing.T, s paywall.Storage) {
	ctx := context.Background()

	_, err := s.GetPaymentSettings(ctx)
	assert.ErrorIs(t, err, paywall.ErrPaymentSettingsNotConfigured)

	require.NoError(t, s.ReplacePaymentSettings(ctx, &paywall.PaymentSettings{
		ID: "set_1", ProductID: "prod_1", PriceID: "price_1", CreatedAt: base,
	}))
	require.NoError(t, s.ReplacePaymentSettings(ctx, &paywall.PaymentSettings{
		ID: "set_2", ProductID: "prod_2", PriceID: "price_2", CreatedAt: base.Add(time.Hour),
	}))

	got, err := s.GetPaymentSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "set_2", got.ID)
	assert.Equal(t, "prod_2", got.ProductID)
	assert.Equal(t, "price_2", got.PriceID)
}
