// Package tiered provides a Hot/Cold tiered storage adapter that puts fast
// ephemeral storage (Hot) in front of durable persistent storage (Cold).
// Cold is the source of truth: every write lands there first and every
// multi-record query is answered by it.
package tiered

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// defaultWarmConcurrency bounds parallel hot fills in Warm
const defaultWarmConcurrency = 8

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 storage (e.g., Redis, Memory) for single-record reads
	Hot paywall.Storage

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold paywall.Storage

	// HotErrorHandler is called when a hot write fails after cold succeeded.
	// Such failures never fail the operation but leave the hot tier stale.
	HotErrorHandler func(error)

	// WarmConcurrency bounds parallel hot fills in Warm
	// Default: 8
	WarmConcurrency int
}

// Storage implements a Hot/Cold tiered storage architecture:
// - Read-Through: single-record lookups (Hot → Cold → populate Hot)
// - Write-Through: every write (Cold → Hot)
// - Cold-Only: customer resolution and per-user listings
type Storage struct {
	hot  paywall.Storage
	cold paywall.Storage
	conf Config
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.WarmConcurrency <= 0 {
		config.WarmConcurrency = defaultWarmConcurrency
	}

	return &Storage{
		hot:  config.Hot,
		cold: config.Cold,
		conf: config,
	}, nil
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// GetCheckoutSession implements paywall.Storage with read-through strategy.
func (s *Storage) GetCheckoutSession(ctx context.Context, sessionID string) (*paywall.CheckoutSession, error) {
	session, err := s.hot.GetCheckoutSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	session, err = s.cold.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.fillSession(ctx, session)
	return session, nil
}

// GetSubscription implements paywall.Storage with read-through strategy.
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*paywall.Subscription, error) {
	sub, err := s.hot.GetSubscription(ctx, subscriptionID)
	if err == nil {
		return sub, nil
	}

	sub, err = s.cold.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	s.fillSubscription(ctx, sub)
	return sub, nil
}

// GetPaymentSettings implements paywall.Storage with read-through strategy.
func (s *Storage) GetPaymentSettings(ctx context.Context) (*paywall.PaymentSettings, error) {
	settings, err := s.hot.GetPaymentSettings(ctx)
	if err == nil {
		return settings, nil
	}

	settings, err = s.cold.GetPaymentSettings(ctx)
	if err != nil {
		return nil, err
	}

	// Cache fill - errors are non-critical
	_ = s.hot.ReplacePaymentSettings(ctx, settings) //nolint:errcheck // Cache fill
	return settings, nil
}

// --- Strategy: Cold-Only ---
// Hot holds whatever was read or written through it, so it cannot answer
// "earliest of all" or "every one of" queries.

// FindCheckoutSessionByCustomer implements paywall.Storage against cold storage.
func (s *Storage) FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*paywall.CheckoutSession, error) {
	return s.cold.FindCheckoutSessionByCustomer(ctx, customerID)
}

// ListSubscriptionsByUser implements paywall.Storage against cold storage.
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*paywall.Subscription, error) {
	return s.cold.ListSubscriptionsByUser(ctx, userID)
}

// --- Strategy: Write-Through (Cold → Hot) ---
// Critical data must be durable first.

// CreateCheckoutSession implements paywall.Storage with write-through strategy.
func (s *Storage) CreateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if err := s.cold.CreateCheckoutSession(ctx, session); err != nil {
		return err
	}
	s.fillSession(ctx, session)
	return nil
}

// UpdateCheckoutSession implements paywall.Storage with write-through strategy.
func (s *Storage) UpdateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if err := s.cold.UpdateCheckoutSession(ctx, session); err != nil {
		return err
	}
	err := s.hot.UpdateCheckoutSession(ctx, session)
	if err != nil && !errors.Is(err, paywall.ErrCheckoutSessionNotFound) {
		s.reportHotError("update checkout session", err)
	}
	return nil
}

// InsertSubscription implements paywall.Storage with write-through strategy.
// Uniqueness is decided by cold storage alone.
func (s *Storage) InsertSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if err := s.cold.InsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.fillSubscription(ctx, sub)
	return nil
}

// UpdateSubscription implements paywall.Storage with write-through strategy.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if err := s.cold.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	err := s.hot.UpdateSubscription(ctx, sub)
	if err != nil && !errors.Is(err, paywall.ErrSubscriptionNotFound) {
		s.reportHotError("update subscription", err)
	}
	return nil
}

// ReplacePaymentSettings implements paywall.Storage with write-through strategy.
func (s *Storage) ReplacePaymentSettings(ctx context.Context, settings *paywall.PaymentSettings) error {
	if err := s.cold.ReplacePaymentSettings(ctx, settings); err != nil {
		return err
	}
	if err := s.hot.ReplacePaymentSettings(ctx, settings); err != nil {
		s.reportHotError("replace payment settings", err)
	}
	return nil
}

// Warm copies every cold subscription owned by the user into the hot tier.
func (s *Storage) Warm(ctx context.Context, userID string) error {
	subs, err := s.cold.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("tiered warm: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.conf.WarmConcurrency)
	for _, sub := range subs {
		g.Go(func() error {
			return s.putHotSubscription(gctx, sub)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("tiered warm: %w", err)
	}
	return nil
}

// fillSession mirrors a session into hot storage; an existing hot copy is overwritten
func (s *Storage) fillSession(ctx context.Context, session *paywall.CheckoutSession) {
	err := s.hot.CreateCheckoutSession(ctx, session)
	if errors.Is(err, paywall.ErrCheckoutSessionExists) {
		err = s.hot.UpdateCheckoutSession(ctx, session)
	}
	if err != nil {
		s.reportHotError("fill checkout session", err)
	}
}

func (s *Storage) fillSubscription(ctx context.Context, sub *paywall.Subscription) {
	if err := s.putHotSubscription(ctx, sub); err != nil {
		s.reportHotError("fill subscription", err)
	}
}

func (s *Storage) putHotSubscription(ctx context.Context, sub *paywall.Subscription) error {
	err := s.hot.InsertSubscription(ctx, sub)
	if errors.Is(err, paywall.ErrSubscriptionExists) {
		err = s.hot.UpdateSubscription(ctx, sub)
	}
	return err
}

func (s *Storage) reportHotError(op string, err error) {
	if s.conf.HotErrorHandler != nil {
		s.conf.HotErrorHandler(fmt.Errorf("tiered %s: %w", op, err))
	}
}

var _ paywall.Storage = (*Storage)(nil)
