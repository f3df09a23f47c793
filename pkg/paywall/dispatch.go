package paywall

import (
	"context"
	"fmt"
	"time"
)

type outcome string

const (
	outcomeHandled outcome = "handled"
	outcomeDropped outcome = "dropped"
	outcomeIgnored outcome = "ignored"
)

// Dispatch routes a verified event to its handler. Unmodeled event types are logged
// and acknowledged. A returned error means the event was not applied and the
// delivery should not be acknowledged, so the provider redelivers it.
//
// Every handler tolerates repeated delivery of the same event.
func (m *Manager) Dispatch(ctx context.Context, event Event) (*Ack, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	start := time.Now()
	var (
		out outcome
		err error
	)
	switch e := event.(type) {
	case *CheckoutSessionCompleted:
		out, err = m.completeCheckout(ctx, e)
	case *SubscriptionUpdated:
		out, err = m.applySubscription(ctx, e, &e.Subscription)
	case *SubscriptionDeleted:
		out, err = m.cancelSubscription(ctx, e)
	default:
		m.logger().Info("ignoring unhandled event type", eventFields(event)...)
		out = outcomeIgnored
	}
	m.metrics().RecordEventDuration(event.EventType(), time.Since(start))

	if err != nil {
		m.metrics().RecordEvent(event.EventType(), "error")
		m.logger().Error("event processing failed", eventFields(event, Field{"error", err.Error()})...)
		return nil, err
	}
	m.metrics().RecordEvent(event.EventType(), string(out))

	return &Ack{
		EventID:   event.EventID(),
		EventType: event.EventType(),
		Handled:   out == outcomeHandled,
	}, nil
}
