package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gopaywall/pkg/billing"
	"github.com/mihaimyh/gopaywall/pkg/paywall"
)

// ParseEvent translates a verified Stripe event into a paywall.Event.
// Event types without a paywall variant become *paywall.UnhandledEvent.
func ParseEvent(event stripe.Event) (paywall.Event, error) {
	meta := paywall.EventMeta{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decodeObject(event, &session); err != nil {
			return nil, err
		}
		if session.ID == "" {
			return nil, fmt.Errorf("%w: %s without session id", billing.ErrInvalidWebhookPayload, event.Type)
		}
		e := &paywall.CheckoutSessionCompleted{EventMeta: meta, SessionID: session.ID}
		if session.Customer != nil {
			e.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			e.SubscriptionID = session.Subscription.ID
		}
		return e, nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		sub, err := decodeSubscription(event)
		if err != nil {
			return nil, err
		}
		return &paywall.SubscriptionUpdated{EventMeta: meta, Subscription: sub}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		sub, err := decodeSubscription(event)
		if err != nil {
			return nil, err
		}
		return &paywall.SubscriptionDeleted{EventMeta: meta, Subscription: sub}, nil

	default:
		return &paywall.UnhandledEvent{EventMeta: meta}, nil
	}
}

func decodeObject(event stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: %s without data.object", billing.ErrInvalidWebhookPayload, event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal %s object: %w", billing.ErrInvalidWebhookPayload, event.Type, err)
	}
	return nil
}

func decodeSubscription(event stripe.Event) (paywall.ProviderSubscription, error) {
	var sub stripe.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return paywall.ProviderSubscription{}, err
	}
	if sub.ID == "" {
		return paywall.ProviderSubscription{}, fmt.Errorf("%w: %s without subscription id", billing.ErrInvalidWebhookPayload, event.Type)
	}
	return toProviderSubscription(&sub), nil
}

// toProviderSubscription flattens a Stripe subscription. Billing periods live on the
// subscription items; the first item carrying one is used.
func toProviderSubscription(sub *stripe.Subscription) paywall.ProviderSubscription {
	ps := paywall.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		ps.CustomerID = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		canceledAt := sub.CanceledAt
		ps.CanceledAt = &canceledAt
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > 0 {
				ps.CurrentPeriodStart = item.CurrentPeriodStart
				ps.CurrentPeriodEnd = item.CurrentPeriodEnd
				break
			}
		}
	}
	return ps
}
