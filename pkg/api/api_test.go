package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
	"github.com/mihaimyh/gopaywall/storage/memory"
)

const (
	headerUser  = "X-User-ID"
	headerAdmin = "X-Admin"
)

type fakeAPI struct {
	checkoutErr error
	sessions    int
}

func (f *fakeAPI) CreateCheckoutSession(_ context.Context, req *paywall.CheckoutRequest) (*paywall.CheckoutResult, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.sessions++
	id := fmt.Sprintf("cs_%d", f.sessions)
	return &paywall.CheckoutResult{SessionID: id, RedirectURL: "https://checkout.example.com/" + id + "?price=" + req.PriceID}, nil
}

func (f *fakeAPI) RetrieveSubscription(context.Context, string) (*paywall.ProviderSubscription, error) {
	return nil, errors.New("not used")
}

func (f *fakeAPI) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example.com/" + customerID + "?return=" + returnURL, nil
}

type apiEnv struct {
	handler http.Handler
	manager *paywall.Manager
	storage *memory.Storage
	api     *fakeAPI
}

func newAPIEnv(t *testing.T, mutate ...func(*Config)) *apiEnv {
	t.Helper()

	storage := memory.New()
	api := &fakeAPI{}
	manager, err := paywall.NewManager(storage, api, paywall.Config{RedirectBaseURL: "https://app.example.com"})
	require.NoError(t, err)

	config := Config{
		Manager:   manager,
		GetUserID: func(r *http.Request) string { return r.Header.Get(headerUser) },
		IsAdmin:   func(r *http.Request) bool { return r.Header.Get(headerAdmin) == "true" },
	}
	for _, m := range mutate {
		m(&config)
	}
	h, err := New(config)
	require.NoError(t, err)

	return &apiEnv{handler: h.Routes(), manager: manager, storage: storage, api: api}
}

func (e *apiEnv) do(method, path, userID string, admin bool, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(headerUser, userID)
	}
	if admin {
		req.Header.Set(headerAdmin, "true")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) seedSubscription(t *testing.T, userID string, status paywall.SubscriptionStatus) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.storage.InsertSubscription(context.Background(), &paywall.Subscription{
		SubscriptionID: "sub_" + userID,
		UserID:         userID,
		CustomerID:     "cus_" + userID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestNew_Validation(t *testing.T) {
	manager, err := paywall.NewManager(memory.New(), &fakeAPI{}, paywall.Config{RedirectBaseURL: "https://app.example.com"})
	require.NoError(t, err)

	_, err = New(Config{GetUserID: func(*http.Request) string { return "" }})
	assert.Error(t, err)
	_, err = New(Config{Manager: manager})
	assert.Error(t, err)
}

func TestGetMySubscription(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodGet, "/billing/subscription", "", false, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/billing/subscription", "u1", false, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscription":null,"active":false}`, w.Body.String())

	env.seedSubscription(t, "u1", paywall.StatusTrialing)
	w = env.do(http.MethodGet, "/billing/subscription", "u1", false, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SubscriptionResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Active)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, "sub_u1", resp.Subscription.SubscriptionID)
}

func TestCreateCheckout(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/billing/checkout", "", false, "").Code)

	w := env.do(http.MethodPost, "/billing/checkout", "u1", false, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "payment_settings_not_configured")

	_, err := env.manager.ReplacePaymentSettings(ctx, "prod_1", "price_1")
	require.NoError(t, err)

	w = env.do(http.MethodPost, "/billing/checkout", "u1", false, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp RedirectResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "https://checkout.example.com/cs_1?price=price_1", resp.URL)

	session, err := env.storage.GetCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, paywall.CheckoutStatusPending, session.Status)
}

func TestCreateCheckout_ProviderFailure(t *testing.T) {
	env := newAPIEnv(t)
	env.api.checkoutErr = errors.New("stripe is down")
	_, err := env.manager.ReplacePaymentSettings(context.Background(), "prod_1", "price_1")
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/billing/checkout", "u1", false, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "stripe is down")
}

func TestCreatePortalSession(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodPost, "/billing/portal", "u1", false, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.seedSubscription(t, "u1", paywall.StatusCanceled)

	w = env.do(http.MethodPost, "/billing/portal", "u1", false, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp RedirectResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "https://portal.example.com/cus_u1?return=https://app.example.com", resp.URL)

	w = env.do(http.MethodPost, "/billing/portal", "u1", false, `{"returnUrl":"https://app.example.com/account"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.True(t, strings.HasSuffix(resp.URL, "return=https://app.example.com/account"))

	w = env.do(http.MethodPost, "/billing/portal", "u1", false, `{"returnUrl":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/billing/portal", "u1", false, `{"returnUrl":"https://evil.example.com/phish"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "portal.example.com")
}

func TestPaymentSettingsEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/admin/billing/settings", "u1", false, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/admin/billing/settings", "admin", true, "").Code)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"productId":`, http.StatusBadRequest},
		{"missing price", `{"productId":"prod_1"}`, http.StatusBadRequest},
		{"unknown field", `{"productId":"prod_1","priceId":"price_1","extra":1}`, http.StatusBadRequest},
		{"valid", `{"productId":"prod_1","priceId":"price_1"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPut, "/admin/billing/settings", "admin", true, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := env.do(http.MethodGet, "/admin/billing/settings", "admin", true, "")
	require.Equal(t, http.StatusOK, w.Code)
	var settings paywall.PaymentSettings
	decodeBody(t, w, &settings)
	assert.Equal(t, "price_1", settings.PriceID)
	assert.NotEmpty(t, settings.ID)
}

func TestGetLatestSubscription(t *testing.T) {
	env := newAPIEnv(t)
	env.seedSubscription(t, "u2", paywall.StatusPastDue)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/admin/billing/subscriptions/latest?userId=u2", "u1", false, "").Code)

	w := env.do(http.MethodGet, "/admin/billing/subscriptions/latest?userId=u2", "admin", true, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp SubscriptionResponse
	decodeBody(t, w, &resp)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, paywall.StatusPastDue, resp.Subscription.Status)
	assert.False(t, resp.Active)
}

func TestCheckoutRateLimit(t *testing.T) {
	env := newAPIEnv(t, func(c *Config) {
		c.RateLimitRequests = 2
		c.RateLimitWindow = time.Hour
	})
	_, err := env.manager.ReplacePaymentSettings(context.Background(), "prod_1", "price_1")
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(http.MethodPost, "/billing/checkout", "u1", false, "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Reads are not limited
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/billing/subscription", "u1", false, "").Code)
}
