// Package firestore provides a Firestore implementation of the paywall.Storage interface.
// Documents are keyed by provider id, so Create gives insert-if-absent semantics.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Storage implements paywall.Storage using Google Cloud Firestore
type Storage struct {
	client                  *firestore.Client
	sessionsCollection      string
	subscriptionsCollection string
	settingsCollection      string
}

// Config holds Firestore storage configuration
type Config struct {
	// SessionsCollection is the Firestore collection for checkout sessions
	// Default: "billing_checkout_sessions"
	SessionsCollection string

	// SubscriptionsCollection is the Firestore collection for subscriptions
	// Default: "billing_subscriptions"
	SubscriptionsCollection string

	// SettingsCollection holds the single current payment settings document
	// Default: "billing_payment_settings"
	SettingsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.SessionsCollection == "" {
		config.SessionsCollection = "billing_checkout_sessions"
	}
	if config.SubscriptionsCollection == "" {
		config.SubscriptionsCollection = "billing_subscriptions"
	}
	if config.SettingsCollection == "" {
		config.SettingsCollection = "billing_payment_settings"
	}

	return &Storage{
		client:                  client,
		sessionsCollection:      config.SessionsCollection,
		subscriptionsCollection: config.SubscriptionsCollection,
		settingsCollection:      config.SettingsCollection,
	}, nil
}

// CreateCheckoutSession implements paywall.Storage
func (s *Storage) CreateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("invalid checkout session")
	}

	data := map[string]interface{}{
		"userId":         session.UserID,
		"status":         string(session.Status),
		"customerId":     session.CustomerID,
		"subscriptionId": session.SubscriptionID,
		"createdAt":      session.CreatedAt,
		"completedAt":    optionalTime(session.CompletedAt),
	}

	_, err := s.client.Collection(s.sessionsCollection).Doc(session.SessionID).Create(ctx, data)
	if status.Code(err) == codes.AlreadyExists {
		return paywall.ErrCheckoutSessionExists
	}
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}
	return nil
}

// GetCheckoutSession implements paywall.Storage
func (s *Storage) GetCheckoutSession(ctx context.Context, sessionID string) (*paywall.CheckoutSession, error) {
	snap, err := s.client.Collection(s.sessionsCollection).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, paywall.ErrCheckoutSessionNotFound
		}
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	if !snap.Exists() {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	return decodeSession(snap), nil
}

// UpdateCheckoutSession implements paywall.Storage
func (s *Storage) UpdateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("invalid checkout session")
	}

	_, err := s.client.Collection(s.sessionsCollection).Doc(session.SessionID).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(session.Status)},
		{Path: "customerId", Value: session.CustomerID},
		{Path: "subscriptionId", Value: session.SubscriptionID},
		{Path: "completedAt", Value: optionalTime(session.CompletedAt)},
	})
	if status.Code(err) == codes.NotFound {
		return paywall.ErrCheckoutSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update checkout session: %w", err)
	}
	return nil
}

// FindCheckoutSessionByCustomer implements paywall.Storage
func (s *Storage) FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*paywall.CheckoutSession, error) {
	if customerID == "" {
		return nil, paywall.ErrCheckoutSessionNotFound
	}

	iter := s.client.Collection(s.sessionsCollection).
		Where("customerId", "==", customerID).
		OrderBy("createdAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout sessions: %w", err)
	}
	return decodeSession(snap), nil
}

// GetSubscription implements paywall.Storage
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*paywall.Subscription, error) {
	snap, err := s.client.Collection(s.subscriptionsCollection).Doc(subscriptionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, paywall.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if !snap.Exists() {
		return nil, paywall.ErrSubscriptionNotFound
	}
	return decodeSubscription(snap), nil
}

// InsertSubscription implements paywall.Storage
func (s *Storage) InsertSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	data := map[string]interface{}{
		"userId":    sub.UserID,
		"createdAt": sub.CreatedAt,
	}
	for _, u := range subscriptionUpdates(sub) {
		data[u.Path] = u.Value
	}

	_, err := s.client.Collection(s.subscriptionsCollection).Doc(sub.SubscriptionID).Create(ctx, data)
	if status.Code(err) == codes.AlreadyExists {
		return paywall.ErrSubscriptionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// UpdateSubscription implements paywall.Storage
func (s *Storage) UpdateSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	_, err := s.client.Collection(s.subscriptionsCollection).Doc(sub.SubscriptionID).Update(ctx, subscriptionUpdates(sub))
	if status.Code(err) == codes.NotFound {
		return paywall.ErrSubscriptionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// ListSubscriptionsByUser implements paywall.Storage
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*paywall.Subscription, error) {
	iter := s.client.Collection(s.subscriptionsCollection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var subs []*paywall.Subscription
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		subs = append(subs, decodeSubscription(snap))
	}
	return subs, nil
}

// GetPaymentSettings implements paywall.Storage
func (s *Storage) GetPaymentSettings(ctx context.Context) (*paywall.PaymentSettings, error) {
	iter := s.client.Collection(s.settingsCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, paywall.ErrPaymentSettingsNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}

	data := snap.Data()
	return &paywall.PaymentSettings{
		ID:        snap.Ref.ID,
		ProductID: getString(data, "productId"),
		PriceID:   getString(data, "priceId"),
		CreatedAt: getTime(data, "createdAt"),
	}, nil
}

// ReplacePaymentSettings implements paywall.Storage.
// Existing documents are deleted and the new one created inside a single transaction.
func (s *Storage) ReplacePaymentSettings(ctx context.Context, settings *paywall.PaymentSettings) error {
	if settings == nil || settings.ID == "" {
		return fmt.Errorf("invalid payment settings")
	}

	coll := s.client.Collection(s.settingsCollection)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range existing {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		return tx.Create(coll.Doc(settings.ID), map[string]interface{}{
			"productId": settings.ProductID,
			"priceId":   settings.PriceID,
			"createdAt": settings.CreatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to replace payment settings: %w", err)
	}
	return nil
}

// Close closes the underlying Firestore client
func (s *Storage) Close() error {
	return s.client.Close()
}

func subscriptionUpdates(sub *paywall.Subscription) []firestore.Update {
	var canceledAt interface{}
	if sub.CanceledAt != nil {
		canceledAt = *sub.CanceledAt
	}
	return []firestore.Update{
		{Path: "customerId", Value: sub.CustomerID},
		{Path: "status", Value: string(sub.Status)},
		{Path: "currentPeriodStart", Value: sub.CurrentPeriodStart},
		{Path: "currentPeriodEnd", Value: sub.CurrentPeriodEnd},
		{Path: "cancelAtPeriodEnd", Value: sub.CancelAtPeriodEnd},
		{Path: "canceledAt", Value: canceledAt},
		{Path: "updatedAt", Value: sub.UpdatedAt},
	}
}

func decodeSession(snap *firestore.DocumentSnapshot) *paywall.CheckoutSession {
	data := snap.Data()
	session := &paywall.CheckoutSession{
		SessionID:      snap.Ref.ID,
		UserID:         getString(data, "userId"),
		Status:         paywall.CheckoutStatus(getString(data, "status")),
		CustomerID:     getString(data, "customerId"),
		SubscriptionID: getString(data, "subscriptionId"),
		CreatedAt:      getTime(data, "createdAt"),
	}
	if completedAt, ok := data["completedAt"].(time.Time); ok && !completedAt.IsZero() {
		session.CompletedAt = &completedAt
	}
	return session
}

func decodeSubscription(snap *firestore.DocumentSnapshot) *paywall.Subscription {
	data := snap.Data()
	sub := &paywall.Subscription{
		SubscriptionID:     snap.Ref.ID,
		UserID:             getString(data, "userId"),
		CustomerID:         getString(data, "customerId"),
		Status:             paywall.SubscriptionStatus(getString(data, "status")),
		CurrentPeriodStart: getInt64(data, "currentPeriodStart"),
		CurrentPeriodEnd:   getInt64(data, "currentPeriodEnd"),
		CreatedAt:          getTime(data, "createdAt"),
		UpdatedAt:          getTime(data, "updatedAt"),
	}
	if v, ok := data["cancelAtPeriodEnd"].(bool); ok {
		sub.CancelAtPeriodEnd = v
	}
	if _, ok := data["canceledAt"].(int64); ok {
		canceledAt := getInt64(data, "canceledAt")
		sub.CanceledAt = &canceledAt
	}
	return sub
}

// optionalTime stores nil pointers as null so equality filters stay simple
func optionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

var _ paywall.Storage = (*Storage)(nil)
