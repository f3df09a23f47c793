package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// Metrics implements paywall.Metrics using Prometheus.
type Metrics struct {
	eventsTotal                *prometheus.CounterVec
	eventDuration              *prometheus.HistogramVec
	unresolvedCustomersTotal   *prometheus.CounterVec
	subscriptionWritesTotal    *prometheus.CounterVec
	checkoutsTotal             *prometheus.CounterVec
	enrichmentsTotal           *prometheus.CounterVec
	cacheHitsTotal             prometheus.Counter
	cacheMissesTotal           prometheus.Counter
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	const subsystem = "paywall"

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Total number of dispatched billing events by outcome.",
		}, []string{"event_type", "outcome"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "event_duration_seconds",
			Help:      "Time spent applying billing events.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		unresolvedCustomersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unresolved_customers_total",
			Help:      "Total number of events dropped because their customer maps to no user.",
		}, []string{"event_type"}),

		subscriptionWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscription_writes_total",
			Help:      "Total number of subscription inserts and updates.",
		}, []string{"operation"}),

		checkoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkouts_total",
			Help:      "Total number of checkout initiations by status.",
		}, []string{"status"}),

		enrichmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "enrichments_total",
			Help:      "Total number of completion-time subscription fetches by status.",
		}, []string{"status"}),

		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of entitlement cache hits.",
		}),

		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of entitlement cache misses.",
		}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of storage circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordEvent(eventType, outcome string) {
	m.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordEventDuration(eventType string, duration time.Duration) {
	m.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordUnresolvedCustomer(eventType string) {
	m.unresolvedCustomersTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordSubscriptionWrite(operation string) {
	m.subscriptionWritesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordCheckout(status string) {
	m.checkoutsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordEnrichment(status string) {
	m.enrichmentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.cacheMissesTotal.Inc()
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

var _ paywall.Metrics = (*Metrics)(nil)
