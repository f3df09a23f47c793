// Package redis provides a Redis implementation of the paywall.Storage interface.
// Records are hashes; insert-if-absent and index maintenance run as Lua scripts
// so concurrent writers observe a single winner.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Storage implements paywall.Storage using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "paywall:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "paywall:",
	}
}

// New creates a new Redis storage adapter.
// The client must address a single keyspace: a *redis.Client, optionally
// Sentinel-backed. The write scripts span a record and its index keys, so
// sharded clients (*redis.ClusterClient, *redis.Ring) are rejected.
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	switch client.(type) {
	case *redis.ClusterClient, *redis.Ring:
		return nil, fmt.Errorf("sharded redis clients are not supported")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "paywall:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()
	return s, nil
}

// loadScripts compiles the Lua scripts used for atomic writes
func (s *Storage) loadScripts() {
	// KEYS[1] record hash, KEYS[2] optional index
	// ARGV[1] index score, ARGV[2] index member, ARGV[3..] field/value pairs
	s.scripts["insert"] = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 0
		end
		redis.call('HSET', KEYS[1], unpack(ARGV, 3))
		if KEYS[2] then
			redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
		end
		return 1
	`)

	// KEYS[1] record hash, ARGV field/value pairs
	s.scripts["update"] = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return 0
		end
		redis.call('HSET', KEYS[1], unpack(ARGV))
		return 1
	`)

	// KEYS[1] session hash
	// ARGV[1] key prefix, ARGV[2] session id, ARGV[3] customer id, ARGV[4..] field/value pairs
	s.scripts["updateSession"] = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return 0
		end
		local previous = redis.call('HGET', KEYS[1], 'customer_id')
		if previous and previous ~= '' and previous ~= ARGV[3] then
			redis.call('ZREM', ARGV[1] .. 'customer:' .. previous, ARGV[2])
		end
		redis.call('HSET', KEYS[1], unpack(ARGV, 4))
		if ARGV[3] ~= '' then
			local score = redis.call('HGET', KEYS[1], 'created_ms')
			redis.call('ZADD', ARGV[1] .. 'customer:' .. ARGV[3], score, ARGV[2])
		end
		return 1
	`)
}

// CreateCheckoutSession implements paywall.Storage
func (s *Storage) CreateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("invalid checkout session")
	}

	keys := []string{s.sessionKey(session.SessionID)}
	if session.CustomerID != "" {
		keys = append(keys, s.customerIndexKey(session.CustomerID))
	}
	args := append([]interface{}{session.CreatedAt.UnixMilli(), session.SessionID}, sessionFields(session, true)...)

	inserted, err := s.scripts["insert"].Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}
	if inserted == 0 {
		return paywall.ErrCheckoutSessionExists
	}
	return nil
}

// GetCheckoutSession implements paywall.Storage
func (s *Storage) GetCheckoutSession(ctx context.Context, sessionID string) (*paywall.CheckoutSession, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	if len(fields) == 0 {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	return decodeSession(fields)
}

// UpdateCheckoutSession implements paywall.Storage
func (s *Storage) UpdateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil {
		return fmt.Errorf("invalid checkout session")
	}

	args := append([]interface{}{s.config.KeyPrefix, session.SessionID, session.CustomerID}, sessionFields(session, false)...)
	updated, err := s.scripts["updateSession"].Run(ctx, s.client, []string{s.sessionKey(session.SessionID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to update checkout session: %w", err)
	}
	if updated == 0 {
		return paywall.ErrCheckoutSessionNotFound
	}
	return nil
}

// FindCheckoutSessionByCustomer implements paywall.Storage.
// The customer index is scored by creation time; ties fall back to lexical session id order.
func (s *Storage) FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*paywall.CheckoutSession, error) {
	if customerID == "" {
		return nil, paywall.ErrCheckoutSessionNotFound
	}

	ids, err := s.client.ZRange(ctx, s.customerIndexKey(customerID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query customer index: %w", err)
	}
	if len(ids) == 0 {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	return s.GetCheckoutSession(ctx, ids[0])
}

// GetSubscription implements paywall.Storage
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*paywall.Subscription, error) {
	fields, err := s.client.HGetAll(ctx, s.subscriptionKey(subscriptionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if len(fields) == 0 {
		return nil, paywall.ErrSubscriptionNotFound
	}
	return decodeSubscription(fields)
}

// InsertSubscription implements paywall.Storage
func (s *Storage) InsertSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	keys := []string{s.subscriptionKey(sub.SubscriptionID), s.userIndexKey(sub.UserID)}
	args := append([]interface{}{sub.CreatedAt.UnixMilli(), sub.SubscriptionID}, subscriptionFields(sub, true)...)

	inserted, err := s.scripts["insert"].Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	if inserted == 0 {
		return paywall.ErrSubscriptionExists
	}
	return nil
}

// UpdateSubscription implements paywall.Storage
func (s *Storage) UpdateSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil {
		return fmt.Errorf("invalid subscription")
	}

	updated, err := s.scripts["update"].Run(ctx, s.client,
		[]string{s.subscriptionKey(sub.SubscriptionID)}, subscriptionFields(sub, false)...).Int()
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if updated == 0 {
		return paywall.ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptionsByUser implements paywall.Storage
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*paywall.Subscription, error) {
	ids, err := s.client.ZRevRange(ctx, s.userIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query user index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.subscriptionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	subs := make([]*paywall.Subscription, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		sub, err := decodeSubscription(fields)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	// The index breaks score ties in reverse member order.
	sort.Slice(subs, func(i, j int) bool {
		return paywall.NewerThan(subs[i], subs[j])
	})
	return subs, nil
}

// GetPaymentSettings implements paywall.Storage
func (s *Storage) GetPaymentSettings(ctx context.Context) (*paywall.PaymentSettings, error) {
	fields, err := s.client.HGetAll(ctx, s.settingsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	if len(fields) == 0 {
		return nil, paywall.ErrPaymentSettingsNotConfigured
	}

	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return nil, err
	}
	return &paywall.PaymentSettings{
		ID:        fields["id"],
		ProductID: fields["product_id"],
		PriceID:   fields["price_id"],
		CreatedAt: createdAt,
	}, nil
}

// ReplacePaymentSettings implements paywall.Storage
func (s *Storage) ReplacePaymentSettings(ctx context.Context, settings *paywall.PaymentSettings) error {
	if settings == nil {
		return fmt.Errorf("invalid payment settings")
	}

	key := s.settingsKey()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"id", settings.ID,
			"product_id", settings.ProductID,
			"price_id", settings.PriceID,
			"created_at", formatTime(settings.CreatedAt),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace payment settings: %w", err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) sessionKey(sessionID string) string {
	return fmt.Sprintf("%scheckout:%s", s.config.KeyPrefix, sessionID)
}

func (s *Storage) subscriptionKey(subscriptionID string) string {
	return fmt.Sprintf("%ssubscription:%s", s.config.KeyPrefix, subscriptionID)
}

// userIndexKey is a sorted set of subscription ids scored by creation time
func (s *Storage) userIndexKey(userID string) string {
	return fmt.Sprintf("%suser:%s", s.config.KeyPrefix, userID)
}

// customerIndexKey is a sorted set of session ids scored by creation time.
// The updateSession script builds the same key from the prefix.
func (s *Storage) customerIndexKey(customerID string) string {
	return fmt.Sprintf("%scustomer:%s", s.config.KeyPrefix, customerID)
}

func (s *Storage) settingsKey() string {
	return s.config.KeyPrefix + "payment_settings"
}

// sessionFields flattens the mutable session fields, plus the immutable ones when creating
func sessionFields(session *paywall.CheckoutSession, create bool) []interface{} {
	completedAt := ""
	if session.CompletedAt != nil {
		completedAt = formatTime(*session.CompletedAt)
	}
	fields := []interface{}{
		"status", string(session.Status),
		"customer_id", session.CustomerID,
		"subscription_id", session.SubscriptionID,
		"completed_at", completedAt,
	}
	if create {
		fields = append(fields,
			"session_id", session.SessionID,
			"user_id", session.UserID,
			"created_at", formatTime(session.CreatedAt),
			"created_ms", session.CreatedAt.UnixMilli(),
		)
	}
	return fields
}

func decodeSession(fields map[string]string) (*paywall.CheckoutSession, error) {
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return nil, err
	}
	session := &paywall.CheckoutSession{
		SessionID:      fields["session_id"],
		UserID:         fields["user_id"],
		Status:         paywall.CheckoutStatus(fields["status"]),
		CustomerID:     fields["customer_id"],
		SubscriptionID: fields["subscription_id"],
		CreatedAt:      createdAt,
	}
	if raw := fields["completed_at"]; raw != "" {
		completedAt, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		session.CompletedAt = &completedAt
	}
	return session, nil
}

// subscriptionFields flattens the provider fields, plus the immutable ones when inserting
func subscriptionFields(sub *paywall.Subscription, create bool) []interface{} {
	canceledAt := ""
	if sub.CanceledAt != nil {
		canceledAt = strconv.FormatInt(*sub.CanceledAt, 10)
	}
	fields := []interface{}{
		"customer_id", sub.CustomerID,
		"status", string(sub.Status),
		"current_period_start", sub.CurrentPeriodStart,
		"current_period_end", sub.CurrentPeriodEnd,
		"cancel_at_period_end", strconv.FormatBool(sub.CancelAtPeriodEnd),
		"canceled_at", canceledAt,
		"updated_at", formatTime(sub.UpdatedAt),
	}
	if create {
		fields = append(fields,
			"subscription_id", sub.SubscriptionID,
			"user_id", sub.UserID,
			"created_at", formatTime(sub.CreatedAt),
		)
	}
	return fields
}

func decodeSubscription(fields map[string]string) (*paywall.Subscription, error) {
	sub := &paywall.Subscription{
		SubscriptionID: fields["subscription_id"],
		UserID:         fields["user_id"],
		CustomerID:     fields["customer_id"],
		Status:         paywall.SubscriptionStatus(fields["status"]),
	}

	var err error
	if sub.CurrentPeriodStart, err = parseInt(fields["current_period_start"]); err != nil {
		return nil, err
	}
	if sub.CurrentPeriodEnd, err = parseInt(fields["current_period_end"]); err != nil {
		return nil, err
	}
	if sub.CancelAtPeriodEnd, err = strconv.ParseBool(fields["cancel_at_period_end"]); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	if raw := fields["canceled_at"]; raw != "" {
		canceledAt, err := parseInt(raw)
		if err != nil {
			return nil, err
		}
		sub.CanceledAt = &canceledAt
	}
	if sub.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return nil, err
	}
	return sub, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode timestamp %q: %w", raw, err)
	}
	return t, nil
}

func parseInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to decode integer %q: %w", raw, err)
	}
	return n, nil
}

var _ paywall.Storage = (*Storage)(nil)
