package paywall_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

const testUserID1 = "user1"

func TestLRUCache_GetSet(t *testing.T) {
	cache := paywall.NewLRUCache(10)

	if _, found := cache.Get(testUserID1); found {
		t.Error("Expected cache miss for unknown user")
	}

	sub := &paywall.Subscription{SubscriptionID: "sub_1", UserID: testUserID1, Status: paywall.StatusActive}
	cache.Set(testUserID1, sub, time.Minute)

	cached, found := cache.Get(testUserID1)
	if !found {
		t.Fatal("Expected cache hit")
	}
	if cached.SubscriptionID != "sub_1" || cached.Status != paywall.StatusActive {
		t.Errorf("Cached subscription mismatch: %+v", cached)
	}

	// Mutating the original or the returned copy must not affect the cache
	sub.Status = paywall.StatusCanceled
	cached.Status = paywall.StatusUnpaid
	again, _ := cache.Get(testUserID1)
	if again.Status != paywall.StatusActive {
		t.Errorf("Expected cached status active, got %s", again.Status)
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %+v", stats)
	}
}

func TestLRUCache_NegativeEntry(t *testing.T) {
	cache := paywall.NewLRUCache(10)
	cache.Set(testUserID1, nil, time.Minute)

	sub, found := cache.Get(testUserID1)
	if !found {
		t.Fatal("Expected negative entry to be a hit")
	}
	if sub != nil {
		t.Errorf("Expected nil subscription, got %+v", sub)
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache := paywall.NewLRUCache(10)
	cache.Set(testUserID1, &paywall.Subscription{SubscriptionID: "sub_1"}, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	if _, found := cache.Get(testUserID1); found {
		t.Error("Expected expired entry to miss")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := paywall.NewLRUCache(3)

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("user%d", i), &paywall.Subscription{SubscriptionID: fmt.Sprintf("sub_%d", i)}, time.Minute)
	}

	// Touch user0 so user1 becomes least recently used
	time.Sleep(time.Millisecond)
	if _, found := cache.Get("user0"); !found {
		t.Fatal("Expected user0 to be cached")
	}

	cache.Set("user3", &paywall.Subscription{SubscriptionID: "sub_3"}, time.Minute)

	if _, found := cache.Get("user1"); found {
		t.Error("Expected user1 to be evicted")
	}
	for _, u := range []string{"user0", "user2", "user3"} {
		if _, found := cache.Get(u); !found {
			t.Errorf("Expected %s to remain cached", u)
		}
	}
	if stats := cache.Stats(); stats.Evictions != 1 || stats.Size != 3 {
		t.Errorf("Expected 1 eviction and size 3, got %+v", stats)
	}
}

func TestLRUCache_InvalidateAndClear(t *testing.T) {
	cache := paywall.NewLRUCache(10)
	cache.Set("a", nil, time.Minute)
	cache.Set("b", nil, time.Minute)

	cache.Invalidate("a")
	if _, found := cache.Get("a"); found {
		t.Error("Expected invalidated entry to miss")
	}

	cache.Clear()
	if _, found := cache.Get("b"); found {
		t.Error("Expected cleared cache to miss")
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Expected empty cache, got size %d", size)
	}
}

func TestNoopCache(t *testing.T) {
	cache := paywall.NewNoopCache()
	cache.Set(testUserID1, &paywall.Subscription{}, time.Minute)

	if _, found := cache.Get(testUserID1); found {
		t.Error("NoopCache should never hit")
	}
	if stats := cache.Stats(); stats != (paywall.CacheStats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}
