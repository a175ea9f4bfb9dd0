package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docgate/internal/types"
)

func at(t time.Time) *time.Time { return &t }

func TestResolveAccess(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		sub    *types.SubscriptionRecord
		grace  time.Duration
		access bool
		plan   types.PlanTier
		reason types.DenialReason
	}{
		{"no record", nil, 0, false, types.PlanFree, types.ReasonNoSubscription},
		{"status none", &types.SubscriptionRecord{Plan: types.PlanFree, Status: types.SubscriptionNone}, 0, false, types.PlanFree, types.ReasonNoSubscription},
		{"active in period", &types.SubscriptionRecord{Plan: types.PlanFirm, Status: types.SubscriptionActive, CurrentPeriodEnd: at(now.Add(time.Hour))}, 0, true, types.PlanFirm, types.ReasonOK},
		{"active lapsed", &types.SubscriptionRecord{Plan: types.PlanFirm, Status: types.SubscriptionActive, CurrentPeriodEnd: at(now)}, 0, false, types.PlanFree, types.ReasonNoSubscription},
		{"trialing", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionTrialing, TrialEnd: at(now.Add(time.Minute))}, 0, true, types.PlanSolo, types.ReasonOK},
		{"trial expired", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionTrialing, TrialEnd: at(now.Add(-time.Minute))}, 0, false, types.PlanFree, types.ReasonTrialExpired},
		{"past due without grace", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionPastDue, CurrentPeriodEnd: at(now.Add(-time.Hour))}, 0, false, types.PlanFree, types.ReasonNoSubscription},
		{"past due within grace", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionPastDue, CurrentPeriodEnd: at(now.Add(-time.Hour))}, 72 * time.Hour, true, types.PlanSolo, types.ReasonOK},
		{"past due beyond grace", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionPastDue, CurrentPeriodEnd: at(now.Add(-96 * time.Hour))}, 72 * time.Hour, false, types.PlanFree, types.ReasonNoSubscription},
		{"canceled", &types.SubscriptionRecord{Plan: types.PlanSolo, Status: types.SubscriptionCanceled, CurrentPeriodEnd: at(now.Add(time.Hour))}, 0, false, types.PlanFree, types.ReasonNoSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAccess(tt.sub, now, tt.grace)
			assert.Equal(t, tt.access, got.HasAccess)
			assert.Equal(t, tt.plan, got.Plan)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	trial := func(end time.Time) *types.SubscriptionRecord {
		return &types.SubscriptionRecord{Status: types.SubscriptionTrialing, TrialEnd: &end}
	}

	assert.Equal(t, 14, TrialDaysRemaining(trial(now.Add(14*24*time.Hour)), now))
	assert.Equal(t, 1, TrialDaysRemaining(trial(now.Add(2*time.Hour)), now))
	assert.Equal(t, 2, TrialDaysRemaining(trial(now.Add(25*time.Hour)), now))
	assert.Equal(t, 0, TrialDaysRemaining(trial(now.Add(-time.Hour)), now))
	assert.Equal(t, 0, TrialDaysRemaining(nil, now))
}
