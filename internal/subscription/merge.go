package subscription

import (
	"time"

	"docgate/internal/types"
)

// merge folds ev into cur without I/O.
func merge(cur types.SubscriptionRecord, ev types.BillingEvent) types.SubscriptionRecord {
	next := cur
	if ev.ExternalSubscriptionID != "" {
		next.ExternalSubscriptionID = ev.ExternalSubscriptionID
	}
	if ev.ExternalCustomerID != "" {
		next.ExternalCustomerID = ev.ExternalCustomerID
	}

	switch ev.Kind {
	case types.BillingSubscriptionUpserted:
		if ev.Plan.Valid() && ev.Plan != types.PlanFree {
			next.Plan = ev.Plan
		}
		if ev.Status.Valid() {
			next.Status = ev.Status
		}
		if ev.TrialStart != nil {
			next.TrialStart = copyTime(ev.TrialStart)
		}
		if ev.TrialEnd != nil {
			next.TrialEnd = copyTime(ev.TrialEnd)
		}
		next.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		if next.Status == types.SubscriptionCanceled {
			setPeriod(&next, ev.CurrentPeriodStart, ev.CurrentPeriodEnd)
		} else {
			advancePeriod(&next, ev.CurrentPeriodStart, ev.CurrentPeriodEnd)
		}

	case types.BillingSubscriptionDeleted:
		next.Status = types.SubscriptionCanceled
		next.CancelAtPeriodEnd = false
		truncatePeriod(&next, ev.OccurredAt)

	case types.BillingPaymentSucceeded:
		if next.Status != types.SubscriptionCanceled {
			next.Status = types.SubscriptionActive
		}
		advancePeriod(&next, ev.CurrentPeriodStart, ev.CurrentPeriodEnd)

	case types.BillingPaymentFailed:
		if next.Status == types.SubscriptionActive || next.Status == types.SubscriptionTrialing {
			next.Status = types.SubscriptionPastDue
		}

	case types.BillingRefunded:
		next.Status = types.SubscriptionCanceled
		next.CancelAtPeriodEnd = false
		truncatePeriod(&next, ev.OccurredAt)
	}

	at := ev.OccurredAt
	next.LastEventAt = &at
	next.LastEventID = ev.ID
	return next
}

// advancePeriod adopts the event's period only if it ends later than the
// stored one.
func advancePeriod(rec *types.SubscriptionRecord, start, end *time.Time) {
	if end == nil {
		return
	}
	if rec.CurrentPeriodEnd != nil && !end.After(*rec.CurrentPeriodEnd) {
		return
	}
	setPeriod(rec, start, end)
}

func setPeriod(rec *types.SubscriptionRecord, start, end *time.Time) {
	if start != nil {
		rec.CurrentPeriodStart = copyTime(start)
	}
	if end != nil {
		rec.CurrentPeriodEnd = copyTime(end)
	}
}

// truncatePeriod ends the period at t when it would otherwise run past it.
func truncatePeriod(rec *types.SubscriptionRecord, t time.Time) {
	if rec.CurrentPeriodEnd == nil || rec.CurrentPeriodEnd.After(t) {
		rec.CurrentPeriodEnd = &t
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
