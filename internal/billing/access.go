package billing

import (
	"time"

	"docgate/internal/types"
)

// Access is the subscription-derived entitlement state at an instant.
type Access struct {
	HasAccess bool
	// Plan is the tier whose limits apply. It is the subscribed tier only
	// while HasAccess is true and free otherwise.
	Plan types.PlanTier
	// Reason explains a missing access: NO_SUBSCRIPTION or TRIAL_EXPIRED.
	Reason types.DenialReason
}

// ResolveAccess applies the single access rule: active with a period ending
// after now, or trialing with a trial ending after now. pastDueGrace extends
// a past_due subscription past its period end; zero disables it.
func ResolveAccess(sub *types.SubscriptionRecord, now time.Time, pastDueGrace time.Duration) Access {
	denied := Access{Plan: types.PlanFree, Reason: types.ReasonNoSubscription}
	if sub == nil {
		return denied
	}

	switch sub.Status {
	case types.SubscriptionActive:
		if sub.PeriodActive(now) {
			return Access{HasAccess: true, Plan: sub.Plan, Reason: types.ReasonOK}
		}
	case types.SubscriptionTrialing:
		if sub.TrialActive(now) {
			return Access{HasAccess: true, Plan: sub.Plan, Reason: types.ReasonOK}
		}
		denied.Reason = types.ReasonTrialExpired
	case types.SubscriptionPastDue:
		if pastDueGrace > 0 && sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Add(pastDueGrace).After(now) {
			return Access{HasAccess: true, Plan: sub.Plan, Reason: types.ReasonOK}
		}
	}
	return denied
}

// TrialDaysRemaining rounds partial days up so a trial ending later today
// reports one day. It is zero outside an active trial.
func TrialDaysRemaining(sub *types.SubscriptionRecord, now time.Time) int {
	if sub == nil || !sub.TrialActive(now) {
		return 0
	}
	remaining := sub.TrialEnd.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
