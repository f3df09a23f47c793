// Package api exposes the paywall Manager as JSON HTTP handlers: subscription status,
// checkout and portal redirects, and admin payment settings.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gopaywall/internal/httputil"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

const (
	defaultRateLimitRequests = 10
	defaultRateLimitWindow   = time.Minute
	maxRequestBodyBytes      = 16 * 1024
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// AdminAuthorizer reports whether the request may use admin endpoints
type AdminAuthorizer func(r *http.Request) bool

// Config holds handler configuration
type Config struct {
	// Manager is the paywall manager instance (required)
	Manager *paywall.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// IsAdmin guards the admin endpoints. If nil, they always answer 403.
	IsAdmin AdminAuthorizer

	// RateLimitRequests and RateLimitWindow bound checkout and portal requests per client IP.
	// Default: 10 per minute
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logger is optional
	Logger paywall.Logger
}

// Handler serves the billing API
type Handler struct {
	manager   *paywall.Manager
	getUserID UserIDExtractor
	isAdmin   AdminAuthorizer
	limiter   *httputil.RateLimiter
	validate  *validator.Validate
	logger    paywall.Logger
}

// New creates a Handler
func New(config Config) (*Handler, error) {
	if config.Manager == nil {
		return nil, errors.New("api: manager is required")
	}
	if config.GetUserID == nil {
		return nil, errors.New("api: GetUserID is required")
	}
	if config.RateLimitRequests <= 0 {
		config.RateLimitRequests = defaultRateLimitRequests
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = defaultRateLimitWindow
	}
	isAdmin := config.IsAdmin
	if isAdmin == nil {
		isAdmin = func(*http.Request) bool { return false }
	}
	logger := config.Logger
	if logger == nil {
		logger = &paywall.NoopLogger{}
	}

	return &Handler{
		manager:   config.Manager,
		getUserID: config.GetUserID,
		isAdmin:   isAdmin,
		limiter:   httputil.NewRateLimiter(config.RateLimitRequests, config.RateLimitWindow),
		validate:  validator.New(),
		logger:    logger,
	}, nil
}

// Routes returns a mux with every endpoint mounted under its default path.
// Frameworks with their own router can mount the individual handlers instead.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /billing/subscription", h.GetMySubscription)
	mux.Handle("POST /billing/checkout", h.RateLimit(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /billing/portal", h.RateLimit(http.HandlerFunc(h.CreatePortalSession)))
	mux.HandleFunc("GET /admin/billing/subscriptions/latest", h.GetLatestSubscription)
	mux.HandleFunc("GET /admin/billing/settings", h.GetPaymentSettings)
	mux.HandleFunc("PUT /admin/billing/settings", h.PutPaymentSettings)
	return mux
}

// RateLimit applies the per-IP limiter used for checkout and portal requests
func (h *Handler) RateLimit(next http.Handler) http.Handler {
	return h.limiter.Middleware(next)
}
