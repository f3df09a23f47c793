package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mihaimyh/gopaywall/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, l := range m.GetLabel() {
				if v, ok := labels[l.GetName()]; ok && v != l.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var total uint64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
	}
	return total
}

func TestMetrics_Webhooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "handled")
	m.RecordWebhookEvent("stripe", "checkout.session.completed", "handled")
	m.RecordWebhookEvent("stripe", "invoice.paid", "ignored")
	m.RecordWebhookError("stripe", "auth_failed")
	m.RecordWebhookProcessingDuration("stripe", "invoice.paid", 3*time.Millisecond)

	if got := counterValue(t, reg, "test_billing_webhook_events_total", map[string]string{
		"provider": "stripe", "event_type": "checkout.session.completed", "status": "handled",
	}); got != 2 {
		t.Errorf("handled = %v, want 2", got)
	}
	if got := counterValue(t, reg, "test_billing_webhook_errors_total", map[string]string{"error_type": "auth_failed"}); got != 1 {
		t.Errorf("auth_failed = %v, want 1", got)
	}
	if got := histogramCount(t, reg, "test_billing_webhook_processing_duration_seconds"); got != 1 {
		t.Errorf("duration samples = %d, want 1", got)
	}
}

func TestMetrics_APICalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordAPICall("stripe", "/v1/checkout/sessions", "success")
	m.RecordAPICall("stripe", "/v1/checkout/sessions", "error")
	m.RecordAPICallDuration("stripe", "/v1/checkout/sessions", 120*time.Millisecond)
	m.RecordAPICallDuration("stripe", "/v1/subscriptions", 80*time.Millisecond)

	if got := counterValue(t, reg, "test_billing_api_calls_total", map[string]string{"status": "error"}); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := histogramCount(t, reg, "test_billing_api_call_duration_seconds"); got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
}

func TestNoopMetrics(t *testing.T) {
	var m billing.Metrics = &billing.NoopMetrics{}
	m.RecordWebhookEvent("stripe", "x", "handled")
	m.RecordWebhookProcessingDuration("stripe", "x", time.Second)
	m.RecordWebhookError("stripe", "x")
	m.RecordAPICall("stripe", "x", "success")
	m.RecordAPICallDuration("stripe", "x", time.Second)
}
