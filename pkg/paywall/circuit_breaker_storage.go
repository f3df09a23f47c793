package paywall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the storage circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the breaker in metrics (default: "paywall-storage")
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit (default: 5)
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before probing (default: 30 seconds)
	ResetTimeout time.Duration

	// Interval clears failure counts while closed (default: 60 seconds)
	Interval time.Duration

	// HalfOpenRequests is the number of trial requests allowed while half-open (default: 1)
	HalfOpenRequests uint32
}

// DefaultCircuitBreakerConfig returns the default breaker settings
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "paywall-storage",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Interval:         60 * time.Second,
		HalfOpenRequests: 1,
	}
}

// CircuitBreakerStorage wraps a Storage implementation with circuit breaker protection.
// Domain outcomes such as not-found or already-exists do not count as failures.
type CircuitBreakerStorage struct {
	storage Storage
	cb      *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreakerStorage creates a new storage wrapper with circuit breaker.
// Zero config fields take their defaults; metrics may be nil.
func NewCircuitBreakerStorage(storage Storage, config CircuitBreakerConfig, metrics Metrics) *CircuitBreakerStorage {
	defaults := DefaultCircuitBreakerConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = defaults.HalfOpenRequests
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	threshold := config.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.RecordCircuitBreakerStateChange(to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
	})

	return &CircuitBreakerStorage{
		storage: storage,
		cb:      cb,
	}
}

// State returns the breaker state ("closed", "half-open" or "open")
func (s *CircuitBreakerStorage) State() string {
	return s.cb.State().String()
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrCheckoutSessionNotFound) ||
		errors.Is(err, ErrCheckoutSessionExists) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrSubscriptionExists) ||
		errors.Is(err, ErrPaymentSettingsNotConfigured) ||
		errors.Is(err, context.Canceled)
}

func execute[T any](s *CircuitBreakerStorage, fn func() (T, error)) (T, error) {
	v, err := s.cb.Execute(func() (any, error) {
		r, err := fn()
		return r, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	r, _ := v.(T)
	return r, nil
}

func executeErr(s *CircuitBreakerStorage, fn func() error) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (s *CircuitBreakerStorage) CreateCheckoutSession(ctx context.Context, session *CheckoutSession) error {
	return executeErr(s, func() error {
		return s.storage.CreateCheckoutSession(ctx, session)
	})
}

func (s *CircuitBreakerStorage) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	return execute(s, func() (*CheckoutSession, error) {
		return s.storage.GetCheckoutSession(ctx, sessionID)
	})
}

func (s *CircuitBreakerStorage) UpdateCheckoutSession(ctx context.Context, session *CheckoutSession) error {
	return executeErr(s, func() error {
		return s.storage.UpdateCheckoutSession(ctx, session)
	})
}

func (s *CircuitBreakerStorage) FindCheckoutSessionByCustomer(ctx context.Context, customerID string) (*CheckoutSession, error) {
	return execute(s, func() (*CheckoutSession, error) {
		return s.storage.FindCheckoutSessionByCustomer(ctx, customerID)
	})
}

func (s *CircuitBreakerStorage) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return execute(s, func() (*Subscription, error) {
		return s.storage.GetSubscription(ctx, subscriptionID)
	})
}

func (s *CircuitBreakerStorage) InsertSubscription(ctx context.Context, sub *Subscription) error {
	return executeErr(s, func() error {
		return s.storage.InsertSubscription(ctx, sub)
	})
}

func (s *CircuitBreakerStorage) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	return executeErr(s, func() error {
		return s.storage.UpdateSubscription(ctx, sub)
	})
}

func (s *CircuitBreakerStorage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	return execute(s, func() ([]*Subscription, error) {
		return s.storage.ListSubscriptionsByUser(ctx, userID)
	})
}

func (s *CircuitBreakerStorage) GetPaymentSettings(ctx context.Context) (*PaymentSettings, error) {
	return execute(s, func() (*PaymentSettings, error) {
		return s.storage.GetPaymentSettings(ctx)
	})
}

func (s *CircuitBreakerStorage) ReplacePaymentSettings(ctx context.Context, settings *PaymentSettings) error {
	return executeErr(s, func() error {
		return s.storage.ReplacePaymentSettings(ctx, settings)
	})
}

var _ Storage = (*CircuitBreakerStorage)(nil)
