package types

import "time"

// BillingEventKind classifies a provider-neutral subscription change.
type BillingEventKind string

const (
	// BillingSubscriptionUpserted carries a full subscription snapshot:
	// created, updated, checkout completed, or a polled sync.
	BillingSubscriptionUpserted BillingEventKind = "subscription.upserted"
	BillingSubscriptionDeleted  BillingEventKind = "subscription.deleted"
	BillingPaymentSucceeded     BillingEventKind = "payment.succeeded"
	BillingPaymentFailed        BillingEventKind = "payment.failed"
	BillingRefunded             BillingEventKind = "payment.refunded"
)

// BillingEvent is a payments-provider event translated into domain terms.
// Fields the provider did not send are zero.
type BillingEvent struct {
	ID                     string
	Kind                   BillingEventKind
	OccurredAt             time.Time
	UserID                 string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Plan                   PlanTier
	Status                 SubscriptionStatus
	TrialStart             *time.Time
	TrialEnd               *time.Time
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// RedirectURLs are the browser return targets for hosted checkout.
type RedirectURLs struct {
	Success string `json:"success_url" validate:"required,url"`
	Cancel  string `json:"cancel_url" validate:"required,url"`
}
