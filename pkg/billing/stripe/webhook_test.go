package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
	"github.com/mihaimyh/gopaywall/storage/memory"
)

func serve(p *Provider, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.WebhookHandler().ServeHTTP(w, req)
	return w
}

func TestNewProvider_Validation(t *testing.T) {
	manager, err := paywall.NewManager(memory.New(), &stubAPI{}, paywall.Config{RedirectBaseURL: "https://app.example.com"})
	require.NoError(t, err)

	_, err = NewProvider(Config{Config: billing.Config{WebhookSecret: testWebhookSecret}})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)

	_, err = NewProvider(Config{Config: billing.Config{Manager: manager, WebhookSecret: "  "}})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)

	p, err := NewProvider(Config{Config: billing.Config{Manager: manager, WebhookSecret: testWebhookSecret}})
	require.NoError(t, err)
	assert.Equal(t, "stripe", p.Name())
}

func TestWebhookHandler_Rejections(t *testing.T) {
	env := newTestProvider(t, nil)
	valid := eventPayload(t, "evt_1", stripe.EventTypeInvoicePaid, map[string]interface{}{"id": "in_1", "object": "invoice"})

	tests := []struct {
		name     string
		req      func() *http.Request
		wantCode int
	}{
		{
			name: "method not allowed",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/webhooks/stripe", http.NoBody)
			},
			wantCode: http.StatusMethodNotAllowed,
		},
		{
			name: "missing signature",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(valid))
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "invalid signature",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(valid))
				req.Header.Set("Stripe-Signature", sign(valid, "whsec_wrong", time.Now()))
				return req
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "payload too large",
			req: func() *http.Request {
				big := []byte(`{"id":"evt_big","type":"invoice.paid","pad":"` + strings.Repeat("x", maxWebhookBodyBytes) + `"}`)
				return signedRequest(big)
			},
			wantCode: http.StatusRequestEntityTooLarge,
		},
		{
			name: "empty body",
			req: func() *http.Request {
				return signedRequest(nil)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "malformed event",
			req: func() *http.Request {
				return signedRequest(eventPayload(t, "evt_2", stripe.EventTypeCustomerSubscriptionUpdated, nil))
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(env.provider, tt.req())
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWebhookHandler_CheckoutCompletedFlow(t *testing.T) {
	env := newTestProvider(t, nil)
	ctx := context.Background()

	_, err := env.manager.ReplacePaymentSettings(ctx, "prod_1", "price_1")
	require.NoError(t, err)
	redirect, err := env.manager.CreateCheckout(ctx, testUserID)
	require.NoError(t, err)
	assert.Contains(t, redirect, testSessionID)

	env.api.subs[testSubID] = &paywall.ProviderSubscription{
		ID: testSubID, CustomerID: testCustomerID, Status: "active",
		CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000,
	}

	payload := eventPayload(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted,
		checkoutObject(testSessionID, testCustomerID, testSubID))

	w := serve(env.provider, signedRequest(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	session, err := env.storage.GetCheckoutSession(ctx, testSessionID)
	require.NoError(t, err)
	assert.Equal(t, paywall.CheckoutStatusComplete, session.Status)
	assert.Equal(t, testCustomerID, session.CustomerID)

	sub, err := env.manager.GetMySubscription(ctx, testUserID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, testSubID, sub.SubscriptionID)
	assert.Equal(t, int64(1702592000000), sub.CurrentPeriodEnd)

	// Redelivery is acknowledged and leaves a single row
	w = serve(env.provider, signedRequest(payload))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.storage.SubscriptionCount())
}

func TestWebhookHandler_SubscriptionLifecycle(t *testing.T) {
	env := newTestProvider(t, nil)
	ctx := context.Background()
	require.NoError(t, env.storage.CreateCheckoutSession(ctx, &paywall.CheckoutSession{
		SessionID: testSessionID, UserID: testUserID, Status: paywall.CheckoutStatusComplete,
		CustomerID: testCustomerID, CreatedAt: time.Now(),
	}))

	updated := eventPayload(t, "evt_1", stripe.EventTypeCustomerSubscriptionUpdated,
		subscriptionObject(testSubID, testCustomerID, "past_due", 1700000000, 1702592000))
	require.Equal(t, http.StatusOK, serve(env.provider, signedRequest(updated)).Code)

	latest, err := env.manager.GetLatestSubscription(ctx, testUserID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, paywall.StatusPastDue, latest.Status)

	deleted := eventPayload(t, "evt_2", stripe.EventTypeCustomerSubscriptionDeleted,
		subscriptionObject(testSubID, testCustomerID, "canceled", 1700000000, 1702592000))
	require.Equal(t, http.StatusOK, serve(env.provider, signedRequest(deleted)).Code)

	latest, err = env.manager.GetLatestSubscription(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, paywall.StatusCanceled, latest.Status)
	assert.NotNil(t, latest.CanceledAt)
}

func TestHandleWebhook_AckAndCallback(t *testing.T) {
	var events []billing.WebhookEvent
	env := newTestProvider(t, nil, func(c *Config) {
		c.WebhookCallback = func(_ context.Context, e billing.WebhookEvent) error {
			events = append(events, e)
			return errors.New("callback failures are logged only")
		}
	})
	ctx := context.Background()

	// Unknown customer: acknowledged, nothing stored
	orphan := eventPayload(t, "evt_orphan", stripe.EventTypeCustomerSubscriptionCreated,
		subscriptionObject("sub_orphan", "cus_unknown", "active", 1, 2))
	ack, err := env.provider.HandleWebhook(ctx, orphan, sign(orphan, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.False(t, ack.Handled)
	assert.Equal(t, 0, env.storage.SubscriptionCount())

	// Unmodeled type: acknowledged
	invoice := eventPayload(t, "evt_inv", stripe.EventTypeInvoicePaid, map[string]interface{}{"id": "in_1", "object": "invoice"})
	ack, err = env.provider.HandleWebhook(ctx, invoice, sign(invoice, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", ack.EventType)
	assert.False(t, ack.Handled)

	require.Len(t, events, 2)
	assert.Equal(t, "stripe", events[0].Provider)
	assert.Equal(t, "evt_orphan", events[0].EventID)
	assert.Equal(t, "customer.subscription.created", events[0].EventType)
	assert.Equal(t, "evt_inv", events[1].EventID)
}

// brokenStorage fails every checkout session read
type brokenStorage struct {
	*memory.Storage
}

func (b *brokenStorage) GetCheckoutSession(context.Context, string) (*paywall.CheckoutSession, error) {
	return nil, errors.New("connection reset")
}

func TestWebhookHandler_ProcessingErrorIsRetried(t *testing.T) {
	env := newTestProvider(t, &brokenStorage{Storage: memory.New()})

	payload := eventPayload(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted,
		checkoutObject(testSessionID, testCustomerID, ""))
	w := serve(env.provider, signedRequest(payload))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "processing_error", body["error"])
}
