package billing

import (
	"fmt"
	"time"

	"docgate/internal/types"
)

// FeaturePolicy describes how a feature is gated.
type FeaturePolicy struct {
	// RequiresSubscription features need trial or paid access; guests are
	// always denied.
	RequiresSubscription bool
	// Metered features count against PlanLimits.Quota each period.
	Metered bool
	// GuestCounted features consume a guest session counter.
	GuestCounted bool
}

var featurePolicies = map[types.Feature]FeaturePolicy{
	types.FeatureRedaction:     {Metered: true, GuestCounted: true},
	types.FeatureMerge:         {Metered: true, GuestCounted: true},
	types.FeatureAutoDetectPII: {RequiresSubscription: true},
	types.FeatureConvert:       {RequiresSubscription: true},
	types.FeatureCompress:      {},
	types.FeatureSplit:         {},
}

// PolicyFor returns the gating policy for f.
func PolicyFor(f types.Feature) (FeaturePolicy, error) {
	p, ok := featurePolicies[f]
	if !ok {
		return FeaturePolicy{}, types.NewAppError(types.ErrCodeValidationInvalidFeature, fmt.Sprintf("unknown feature %q", f), nil)
	}
	return p, nil
}

// QuotaPeriod returns the [start, end) window usage is counted in. A
// subscription in force at now whose billing period contains now uses that
// period. Anything else falls back to the UTC calendar month containing now,
// including a canceled or unpaid record whose stored period still covers now.
func QuotaPeriod(sub *types.SubscriptionRecord, access Access, now time.Time) (time.Time, time.Time) {
	if access.HasAccess && sub != nil && sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil {
		start, end := *sub.CurrentPeriodStart, *sub.CurrentPeriodEnd
		if !now.Before(start) && now.Before(end) {
			return start, end
		}
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
