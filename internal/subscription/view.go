package subscription

import (
	"time"

	"docgate/internal/billing"
	"docgate/internal/types"
)

// StatusView is the client-facing subscription state. IsActive and
// DaysUntilTrialEnd are derived at read time and never stored.
type StatusView struct {
	Plan              types.PlanTier           `json:"plan"`
	Status            types.SubscriptionStatus `json:"status"`
	IsActive          bool                     `json:"isActive"`
	TrialEndsAt       *time.Time               `json:"trialEndsAt"`
	DaysUntilTrialEnd int                      `json:"daysUntilTrialEnd"`
	CurrentPeriodEnd  *time.Time               `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool                     `json:"cancelAtPeriodEnd"`
	Stale             bool                     `json:"stale,omitempty"`
}

// View projects rec at now. A nil record is the implicit free tier.
func View(rec *types.SubscriptionRecord, now time.Time, pastDueGrace time.Duration) StatusView {
	if rec == nil {
		return StatusView{Plan: types.PlanFree, Status: types.SubscriptionNone}
	}
	access := billing.ResolveAccess(rec, now, pastDueGrace)
	return StatusView{
		Plan:              rec.Plan,
		Status:            rec.Status,
		IsActive:          access.HasAccess,
		TrialEndsAt:       rec.TrialEnd,
		DaysUntilTrialEnd: billing.TrialDaysRemaining(rec, now),
		CurrentPeriodEnd:  rec.CurrentPeriodEnd,
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
	}
}
