package billing

import (
	"context"
	"time"

	"docgate/internal/types"
)

// SubscriptionReader loads a user's record. It returns nil, nil when the user
// has never subscribed.
type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error)
}

// UsageAggregator sums usage per feature within [start, end).
type UsageAggregator interface {
	SumByFeature(ctx context.Context, userID string, start, end time.Time) (map[types.Feature]int64, error)
}

// FeatureUsage is one row of the usage dashboard.
type FeatureUsage struct {
	Feature   types.Feature `json:"feature"`
	Used      int64         `json:"used"`
	Limit     int64         `json:"limit"`
	Unbounded bool          `json:"unbounded"`
}

// UsageSnapshot is the current-period usage for a user.
type UsageSnapshot struct {
	Plan        types.PlanTier `json:"plan"`
	HasAccess   bool           `json:"hasAccess"`
	PeriodStart time.Time      `json:"periodStart"`
	PeriodEnd   time.Time      `json:"periodEnd"`
	Features    []FeatureUsage `json:"features"`
}

// Reporter builds usage snapshots for the dashboard.
type Reporter struct {
	subs         SubscriptionReader
	usage        UsageAggregator
	catalog      *Catalog
	pastDueGrace time.Duration
	clock        types.Clock
}

func NewReporter(subs SubscriptionReader, usage UsageAggregator, catalog *Catalog, pastDueGrace time.Duration, clock types.Clock) *Reporter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Reporter{subs: subs, usage: usage, catalog: catalog, pastDueGrace: pastDueGrace, clock: clock}
}

// CurrentUsage reports metered usage against the limits of the plan that
// currently applies to userID.
func (r *Reporter) CurrentUsage(ctx context.Context, userID string) (*UsageSnapshot, error) {
	now := r.clock.Now()

	sub, err := r.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	access := ResolveAccess(sub, now, r.pastDueGrace)
	limits, err := r.catalog.Limits(access.Plan)
	if err != nil {
		return nil, err
	}

	start, end := QuotaPeriod(sub, access, now)
	sums, err := r.usage.SumByFeature(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	snap := &UsageSnapshot{
		Plan:        access.Plan,
		HasAccess:   access.HasAccess,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	for _, f := range types.AllFeatures() {
		quota, metered := limits.Quota(f)
		if !metered {
			continue
		}
		snap.Features = append(snap.Features, FeatureUsage{
			Feature:   f,
			Used:      sums[f],
			Limit:     quota,
			Unbounded: quota == Unbounded,
		})
	}
	return snap, nil
}
