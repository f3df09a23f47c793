package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
	"github.com/mihaimyh/gopaywall/storage/storagetest"
)

// setupTestStorage creates a storage backed by a fresh miniredis server
func setupTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storage, err := New(client, DefaultConfig())
	require.NoError(t, err)
	return storage, mr
}

func TestStorage_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) paywall.Storage {
		storage, _ := setupTestStorage(t)
		return storage
	})
}

func TestNew(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.EqualError(t, err, "redis client is required")

	storage, err := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{})
	require.NoError(t, err)
	assert.Equal(t, "paywall:", storage.config.KeyPrefix)
}

func TestNew_RejectsShardedClients(t *testing.T) {
	cluster := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{"localhost:0"}})
	t.Cleanup(func() { _ = cluster.Close() })
	_, err := New(cluster, DefaultConfig())
	assert.EqualError(t, err, "sharded redis clients are not supported")

	ring := redis.NewRing(&redis.RingOptions{Addrs: map[string]string{"a": "localhost:0"}})
	t.Cleanup(func() { _ = ring.Close() })
	_, err = New(ring, DefaultConfig())
	assert.EqualError(t, err, "sharded redis clients are not supported")
}

func TestStorage_KeyLayout(t *testing.T) {
	storage, mr := setupTestStorage(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, storage.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_1", UserID: "u1", Status: paywall.CheckoutStatusPending, CreatedAt: now,
	}))
	require.NoError(t, storage.InsertSubscription(ctx, &paywall.Subscription{
		SubscriptionID: "sub_1", UserID: "u1", CustomerID: "cus_1", Status: paywall.StatusActive, CreatedAt: now, UpdatedAt: now,
	}))

	assert.True(t, mr.Exists("paywall:checkout:cs_1"))
	assert.True(t, mr.Exists("paywall:subscription:sub_1"))
	assert.Equal(t, "u1", mr.HGet("paywall:checkout:cs_1", "user_id"))

	members, err := mr.ZMembers("paywall:user:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, members)

	// Pending sessions are not indexed until a customer is recorded.
	assert.False(t, mr.Exists("paywall:customer:cus_1"))
	require.NoError(t, storage.UpdateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_1", Status: paywall.CheckoutStatusComplete, CustomerID: "cus_1",
	}))
	members, err = mr.ZMembers("paywall:customer:cus_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1"}, members)
}

func TestStorage_CustomerReassignmentMovesIndex(t *testing.T) {
	storage, mr := setupTestStorage(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, storage.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_1", UserID: "u1", Status: paywall.CheckoutStatusComplete, CustomerID: "cus_a", CreatedAt: now,
	}))
	require.NoError(t, storage.UpdateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: "cs_1", Status: paywall.CheckoutStatusComplete, CustomerID: "cus_b",
	}))

	_, err := storage.FindCheckoutSessionByCustomer(ctx, "cus_a")
	assert.ErrorIs(t, err, paywall.ErrCheckoutSessionNotFound)
	got, err := storage.FindCheckoutSessionByCustomer(ctx, "cus_b")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, mr.Exists("paywall:customer:cus_a"))
}

func TestStorage_CustomKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storage, err := New(client, Config{KeyPrefix: "tenant1:"})
	require.NoError(t, err)
	require.NoError(t, storage.ReplacePaymentSettings(context.Background(), &paywall.PaymentSettings{
		ID: "set_1", ProductID: "prod_1", PriceID: "price_1", CreatedAt: time.Now(),
	}))

	assert.True(t, mr.Exists("tenant1:payment_settings"))
	assert.Equal(t, "price_1", mr.HGet("tenant1:payment_settings", "price_id"))
}

func TestStorage_ServerDown(t *testing.T) {
	storage, mr := setupTestStorage(t)
	mr.Close()

	_, err := storage.GetSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, paywall.ErrSubscriptionNotFound)
	assert.Error(t, storage.Ping(context.Background()))
}
