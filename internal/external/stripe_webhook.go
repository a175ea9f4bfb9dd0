package external

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"docgate/internal/types"
)

// Stripe event types the webhook understands. Anything else is acknowledged
// and dropped.
const (
	EventStripeSubCreated        = "customer.subscription.created"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
	EventStripeChargeRefunded    = "charge.refunded"
)

// StripeWebhook verifies webhook signatures and translates Stripe events
// into BillingEvents.
type StripeWebhook struct {
	secret string
	prices priceBook
}

func NewStripeWebhook(secret string, priceIDs map[types.PlanTier]string) *StripeWebhook {
	return &StripeWebhook{secret: secret, prices: newPriceBook(priceIDs)}
}

// Parse checks the Stripe-Signature header and decodes the event. It returns
// (nil, nil) for event types that do not affect entitlements.
func (w *StripeWebhook) Parse(payload []byte, sigHeader string) (*types.BillingEvent, error) {
	if err := webhook.ValidatePayload(payload, sigHeader, w.secret); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationSignature, "invalid stripe signature", err)
	}

	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed stripe event", err)
	}
	if evt.Data == nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "stripe event has no data object", nil)
	}

	ev, err := w.translate(string(evt.Type), evt.Data.Raw)
	if err != nil || ev == nil {
		return nil, err
	}
	ev.ID = evt.ID
	ev.OccurredAt = time.Unix(evt.Created, 0).UTC()
	return ev, nil
}

func (w *StripeWebhook) translate(eventType string, raw json.RawMessage) (*types.BillingEvent, error) {
	switch eventType {
	case EventStripeSubCreated, EventStripeSubUpdated:
		var sub stripeSubscription
		if err := decodeObject(eventType, raw, &sub); err != nil {
			return nil, err
		}
		ev := w.prices.subscriptionEvent(&sub)
		return &ev, nil

	case EventStripeSubDeleted:
		var sub stripeSubscription
		if err := decodeObject(eventType, raw, &sub); err != nil {
			return nil, err
		}
		return &types.BillingEvent{
			Kind:                   types.BillingSubscriptionDeleted,
			UserID:                 sub.Metadata["user_id"],
			ExternalSubscriptionID: sub.ID,
			ExternalCustomerID:     sub.Customer,
		}, nil

	case EventStripeCheckoutCompleted:
		var cs stripeCheckoutCompleted
		if err := decodeObject(eventType, raw, &cs); err != nil {
			return nil, err
		}
		if cs.Mode != "subscription" {
			return nil, nil
		}
		plan, _ := types.ParsePlanTier(cs.Metadata["plan"])
		return &types.BillingEvent{
			Kind:                   types.BillingSubscriptionUpserted,
			UserID:                 cs.ClientReferenceID,
			ExternalSubscriptionID: cs.Subscription,
			ExternalCustomerID:     cs.Customer,
			Plan:                   plan,
		}, nil

	case EventStripeInvoicePaid, EventStripePaymentFailed:
		var inv stripeInvoice
		if err := decodeObject(eventType, raw, &inv); err != nil {
			return nil, err
		}
		subID := inv.subscriptionID()
		if subID == "" {
			return nil, nil
		}
		ev := &types.BillingEvent{
			Kind:                   types.BillingPaymentFailed,
			ExternalSubscriptionID: subID,
			ExternalCustomerID:     inv.Customer,
		}
		if eventType == EventStripeInvoicePaid {
			ev.Kind = types.BillingPaymentSucceeded
			if len(inv.Lines.Data) > 0 {
				ev.CurrentPeriodStart = unixPtr(inv.Lines.Data[0].Period.Start)
				ev.CurrentPeriodEnd = unixPtr(inv.Lines.Data[0].Period.End)
			}
		}
		return ev, nil

	case EventStripeChargeRefunded:
		var ch stripeCharge
		if err := decodeObject(eventType, raw, &ch); err != nil {
			return nil, err
		}
		// Partial refunds leave the subscription in force.
		if !ch.Refunded || ch.Customer == "" {
			return nil, nil
		}
		return &types.BillingEvent{
			Kind:               types.BillingRefunded,
			ExternalCustomerID: ch.Customer,
		}, nil
	}
	return nil, nil
}

func decodeObject(eventType string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			fmt.Sprintf("malformed %s object", eventType), err)
	}
	return nil
}

type stripeCheckoutCompleted struct {
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// subscriptionID reads the subscription from either invoice shape.
func (inv stripeInvoice) subscriptionID() string {
	if inv.Subscription != "" {
		return inv.Subscription
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return inv.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

type stripeCharge struct {
	Customer string `json:"customer"`
	Refunded bool   `json:"refunded"`
}
