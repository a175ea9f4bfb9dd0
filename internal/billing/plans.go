// Package billing holds the plan catalog, feature policy and usage reporting.
package billing

import (
	"fmt"
	"time"

	"docgate/internal/types"
)

// Unbounded marks a quota with no ceiling.
const Unbounded int64 = -1

const (
	mb = int64(1024 * 1024)
	gb = 1024 * mb
	tb = 1024 * gb
)

// PlanLimits are the entitlements granted by a tier.
type PlanLimits struct {
	RedactionQuota int64 `json:"redactionQuota"`
	MergeQuota     int64 `json:"mergeQuota"`
	StorageBytes   int64 `json:"storageBytes"`
	SeatCount      int   `json:"seatCount"`
	TrialDays      int   `json:"trialDays"`
}

// Quota returns the per-period allowance for f. ok is false for features
// that are not metered.
func (l PlanLimits) Quota(f types.Feature) (quota int64, ok bool) {
	switch f {
	case types.FeatureRedaction:
		return l.RedactionQuota, true
	case types.FeatureMerge:
		return l.MergeQuota, true
	}
	return 0, false
}

// TrialDuration converts TrialDays to a duration.
func (l PlanLimits) TrialDuration() time.Duration {
	return time.Duration(l.TrialDays) * 24 * time.Hour
}

// DefaultLimits is the deploy-time catalog.
var DefaultLimits = map[types.PlanTier]PlanLimits{
	types.PlanFree: {
		RedactionQuota: 5,
		MergeQuota:     10,
		StorageBytes:   100 * mb,
		SeatCount:      1,
	},
	types.PlanSolo: {
		RedactionQuota: 100,
		MergeQuota:     Unbounded,
		StorageBytes:   5 * gb,
		SeatCount:      1,
		TrialDays:      14,
	},
	types.PlanFirm: {
		RedactionQuota: 1000,
		MergeQuota:     Unbounded,
		StorageBytes:   50 * gb,
		SeatCount:      10,
		TrialDays:      14,
	},
	types.PlanEnterprise: {
		RedactionQuota: Unbounded,
		MergeQuota:     Unbounded,
		StorageBytes:   tb,
		SeatCount:      100,
		TrialDays:      30,
	},
}

// Catalog is an immutable, total mapping from PlanTier to PlanLimits.
type Catalog struct {
	limits map[types.PlanTier]PlanLimits
}

// NewCatalog validates that limits covers exactly the known tiers and that
// every quota is either Unbounded or non-negative.
func NewCatalog(limits map[types.PlanTier]PlanLimits) (*Catalog, error) {
	m := make(map[types.PlanTier]PlanLimits, len(limits))
	for tier, l := range limits {
		if !tier.Valid() {
			return nil, fmt.Errorf("billing: catalog contains unknown tier %q", tier)
		}
		if l.RedactionQuota < Unbounded || l.MergeQuota < Unbounded {
			return nil, fmt.Errorf("billing: tier %q has a negative quota", tier)
		}
		if l.TrialDays < 0 {
			return nil, fmt.Errorf("billing: tier %q has negative trial days", tier)
		}
		m[tier] = l
	}
	for _, tier := range types.AllPlanTiers() {
		if _, ok := m[tier]; !ok {
			return nil, fmt.Errorf("billing: catalog missing tier %q", tier)
		}
	}
	return &Catalog{limits: m}, nil
}

// MustDefaultCatalog returns the catalog built from DefaultLimits.
func MustDefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultLimits)
	if err != nil {
		panic(err)
	}
	return c
}

// Limits returns the limits for tier. Only an invalid tier value errors.
func (c *Catalog) Limits(tier types.PlanTier) (PlanLimits, error) {
	l, ok := c.limits[tier]
	if !ok {
		return PlanLimits{}, types.NewAppError(types.ErrCodeValidationInvalidPlan, fmt.Sprintf("unknown plan %q", tier), nil)
	}
	return l, nil
}
