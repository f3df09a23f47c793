package paywall

import "time"

// Metrics defines the interface for tracking billing synchronization.
type Metrics interface {
	// RecordEvent records a dispatched event and its outcome ("handled", "ignored", "dropped", "error").
	RecordEvent(eventType, outcome string)

	// RecordEventDuration records how long an event took to apply.
	RecordEventDuration(eventType string, duration time.Duration)

	// RecordUnresolvedCustomer records an event dropped because its customer has no known user.
	RecordUnresolvedCustomer(eventType string)

	// RecordSubscriptionWrite records a subscription write ("insert" or "update").
	RecordSubscriptionWrite(operation string)

	// RecordCheckout records a checkout initiation outcome.
	RecordCheckout(status string)

	// RecordEnrichment records a completion-time subscription fetch ("success" or "error").
	RecordEnrichment(status string)

	// RecordCacheHit records an entitlement cache hit.
	RecordCacheHit()

	// RecordCacheMiss records an entitlement cache miss.
	RecordCacheMiss()

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(eventType, outcome string)                        {}
func (n *NoopMetrics) RecordEventDuration(eventType string, duration time.Duration) {}
func (n *NoopMetrics) RecordUnresolvedCustomer(eventType string)                    {}
func (n *NoopMetrics) RecordSubscriptionWrite(operation string)                     {}
func (n *NoopMetrics) RecordCheckout(status string)                                 {}
func (n *NoopMetrics) RecordEnrichment(status string)                               {}
func (n *NoopMetrics) RecordCacheHit()                                              {}
func (n *NoopMetrics) RecordCacheMiss()                                             {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                 {}
