package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
	"github.com/mihaimyh/gopaywall/storage/memory"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testUserID        = "user_123"
	testCustomerID    = "cus_123"
	testSessionID     = "cs_test_123"
	testSubID         = "sub_123"
)

// stubAPI serves subscription reads from memory
type stubAPI struct {
	mu   sync.Mutex
	subs map[string]*paywall.ProviderSubscription
}

func (s *stubAPI) CreateCheckoutSession(_ context.Context, _ *paywall.CheckoutRequest) (*paywall.CheckoutResult, error) {
	return &paywall.CheckoutResult{SessionID: testSessionID, RedirectURL: "https://checkout.stripe.com/c/pay/" + testSessionID}, nil
}

func (s *stubAPI) RetrieveSubscription(_ context.Context, id string) (*paywall.ProviderSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, billing.ErrProviderAPIError
	}
	cp := *sub
	return &cp, nil
}

func (s *stubAPI) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.stripe.com/p/session/" + customerID, nil
}

type testProvider struct {
	provider *Provider
	manager  *paywall.Manager
	storage  *memory.Storage
	api      *stubAPI
}

func newTestProvider(t *testing.T, storage paywall.Storage, mutate ...func(*Config)) *testProvider {
	t.Helper()

	mem := memory.New()
	if storage == nil {
		storage = mem
	}
	api := &stubAPI{subs: map[string]*paywall.ProviderSubscription{}}

	manager, err := paywall.NewManager(storage, api, paywall.Config{RedirectBaseURL: "https://app.example.com"})
	require.NoError(t, err)

	config := Config{Config: billing.Config{Manager: manager, WebhookSecret: testWebhookSecret}}
	for _, m := range mutate {
		m(&config)
	}
	provider, err := NewProvider(config)
	require.NoError(t, err)

	return &testProvider{provider: provider, manager: manager, storage: mem, api: api}
}

// eventPayload builds a Stripe event envelope around object
func eventPayload(t *testing.T, id string, eventType stripe.EventType, object map[string]interface{}) []byte {
	t.Helper()

	body := map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC).Unix(),
		"api_version": stripe.APIVersion,
		"livemode":    false,
	}
	if object != nil {
		body["data"] = map[string]interface{}{"object": object}
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func signedRequest(payload []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sign(payload, testWebhookSecret, time.Now()))
	return req
}

func checkoutObject(sessionID, customerID, subscriptionID string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":                  sessionID,
		"object":              "checkout.session",
		"mode":                "subscription",
		"status":              "complete",
		"client_reference_id": testUserID,
		"metadata":            map[string]string{paywall.MetadataUserID: testUserID},
	}
	if customerID != "" {
		obj["customer"] = customerID
	}
	if subscriptionID != "" {
		obj["subscription"] = subscriptionID
	}
	return obj
}

func subscriptionObject(id, customerID, status string, periodStart, periodEnd int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                   id,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"cancel_at_period_end": false,
		"items": map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{
					"id":                   "si_1",
					"object":               "subscription_item",
					"current_period_start": periodStart,
					"current_period_end":   periodEnd,
				},
			},
		},
	}
}
