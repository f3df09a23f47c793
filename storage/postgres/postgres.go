// Package postgres provides a PostgreSQL implementation of the paywall.Storage interface.
// Subscription uniqueness is enforced by the primary key so concurrent inserts
// for the same provider id resolve to exactly one row.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// uniqueViolation is the SQLSTATE raised on primary key conflicts
const uniqueViolation = "23505"

//go:embed schema.sql
var schema string

// Storage implements paywall.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background expiry goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies the embedded schema during New
	AutoMigrate bool

	// Expiry of abandoned checkout sessions
	CleanupEnabled    bool
	CleanupInterval   time.Duration
	PendingSessionTTL time.Duration

	// Logger receives background expiry failures
	Logger paywall.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		AutoMigrate:       true,
		CleanupEnabled:    true,
		CleanupInterval:   time.Hour,
		PendingSessionTTL: 24 * time.Hour, // hosted checkout pages expire after a day
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Logger == nil {
		config.Logger = &paywall.NoopLogger{}
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			cancel()
			pool.Close()
			return nil, err
		}
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 && config.PendingSessionTTL > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Migrate creates the tables and indexes if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateCheckoutSession implements paywall.Storage
func (s *Storage) CreateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("invalid checkout session")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkout_sessions
			(session_id, user_id, status, customer_id, subscription_id, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.SessionID, session.UserID, string(session.Status),
		session.CustomerID, session.SubscriptionID, session.CreatedAt.UTC(), session.CompletedAt)
	if isUniqueViolation(err) {
		return paywall.ErrCheckoutSessionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert checkout session: %w", err)
	}
	return nil
}

// GetCheckoutSession implements paywall.Storage
func (s *Storage) GetCheckoutSession(ctx context.Context, sessionID string) (*paywall.CheckoutSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, status, customer_id, subscription_id, created_at, completed_at
			FROM checkout_sessions WHERE session_id = $1`,
		sessionID)
	return scanCheckoutSession(row)
}

// UpdateCheckoutSession implements paywall.Storage
func (s *Storage) UpdateCheckoutSession(ctx context.Context, session *paywall.CheckoutSession) error {
	if session == nil {
		return fmt.Errorf("invalid checkout session")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE checkout_sessions
			SET status = $2, customer_id = $3, subscription_id = $4, completed_at = $5
			WHERE session_id = $1`,
		session.SessionID, string(session.Status), session.CustomerID, session.SubscriptionID, session.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update checkout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return paywall.ErrCheckoutSessionNotFound
	}
	return nil
}

// FindCheckoutSessionByCustomer implements paywall.Storage
func (s *Storage) FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*paywall.CheckoutSession, error) {
	if customerID == "" {
		return nil, paywall.ErrCheckoutSessionNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, status, customer_id, subscription_id, created_at, completed_at
			FROM checkout_sessions WHERE customer_id = $1
			ORDER BY created_at, session_id LIMIT 1`,
		customerID)
	return scanCheckoutSession(row)
}

// GetSubscription implements paywall.Storage
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*paywall.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = $1`,
		subscriptionID)

	sub, err := scanSubscription(row)
	if err == pgx.ErrNoRows {
		return nil, paywall.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// InsertSubscription implements paywall.Storage
func (s *Storage) InsertSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.SubscriptionID, sub.UserID, sub.CustomerID, string(sub.Status),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return paywall.ErrSubscriptionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// UpdateSubscription implements paywall.Storage
func (s *Storage) UpdateSubscription(ctx context.Context, sub *paywall.Subscription) error {
	if sub == nil {
		return fmt.Errorf("invalid subscription")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
			customer_id = $2, status = $3, current_period_start = $4, current_period_end = $5,
			cancel_at_period_end = $6, canceled_at = $7, updated_at = $8
			WHERE subscription_id = $1`,
		sub.SubscriptionID, sub.CustomerID, string(sub.Status),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return paywall.ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptionsByUser implements paywall.Storage
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*paywall.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE user_id = $1 ORDER BY created_at DESC, subscription_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*paywall.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// GetPaymentSettings implements paywall.Storage
func (s *Storage) GetPaymentSettings(ctx context.Context) (*paywall.PaymentSettings, error) {
	var settings paywall.PaymentSettings
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, price_id, created_at FROM payment_settings
			ORDER BY created_at DESC LIMIT 1`).Scan(
		&settings.ID, &settings.ProductID, &settings.PriceID, &settings.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, paywall.ErrPaymentSettingsNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	return &settings, nil
}

// ReplacePaymentSettings implements paywall.Storage.
// The delete and insert share one transaction so readers never observe an empty table.
func (s *Storage) ReplacePaymentSettings(ctx context.Context, settings *paywall.PaymentSettings) error {
	if settings == nil {
		return fmt.Errorf("invalid payment settings")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM payment_settings`); err != nil {
		return fmt.Errorf("failed to clear payment settings: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO payment_settings (id, product_id, price_id, created_at) VALUES ($1, $2, $3, $4)`,
		settings.ID, settings.ProductID, settings.PriceID, settings.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert payment settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment settings: %w", err)
	}
	return nil
}

// ExpirePendingSessions marks pending checkout sessions created before cutoff as expired
func (s *Storage) ExpirePendingSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE checkout_sessions SET status = $1 WHERE status = $2 AND created_at < $3`,
		string(paywall.CheckoutStatusExpired), string(paywall.CheckoutStatusPending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire checkout sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// startCleanup periodically expires abandoned checkout sessions until ctx is canceled
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.config.PendingSessionTTL)
			n, err := s.ExpirePendingSessions(ctx, cutoff)
			if err != nil {
				s.config.Logger.Warn("Checkout session expiry failed", paywall.Field{Key: "error", Value: err})
				continue
			}
			if n > 0 {
				s.config.Logger.Debug("Expired pending checkout sessions", paywall.Field{Key: "count", Value: n})
			}
		}
	}
}

const subscriptionColumns = `subscription_id, user_id, customer_id, status,
	current_period_start, current_period_end, cancel_at_period_end, canceled_at,
	created_at, updated_at`

func scanCheckoutSession(row pgx.Row) (*paywall.CheckoutSession, error) {
	var (
		session paywall.CheckoutSession
		status  string
	)
	err := row.Scan(&session.SessionID, &session.UserID, &status, &session.CustomerID,
		&session.SubscriptionID, &session.CreatedAt, &session.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, paywall.ErrCheckoutSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	session.Status = paywall.CheckoutStatus(status)
	return &session, nil
}

func scanSubscription(row pgx.Row) (*paywall.Subscription, error) {
	var (
		sub    paywall.Subscription
		status string
	)
	if err := row.Scan(&sub.SubscriptionID, &sub.UserID, &sub.CustomerID, &status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.CanceledAt,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Status = paywall.SubscriptionStatus(status)
	return &sub, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ paywall.Storage = (*Storage)(nil)
