// Package entitlement decides whether a principal may use a feature now.
//
// Evaluate is a pure function of stored state and time: it never calls the
// payments provider or any other network service. Service resolves the
// inputs from the stores and delegates to Evaluate.
package entitlement

import (
	"time"

	"docgate/internal/billing"
	"docgate/internal/guest"
	"docgate/internal/types"
)

// Input is everything a decision depends on besides the clock.
type Input struct {
	Principal types.Principal
	Feature   types.Feature

	// Account principals.
	Subscription *types.SubscriptionRecord
	PeriodUsage  int64

	// Guest principals.
	Guest *types.GuestSession

	// FileBytes is the size of the largest input file, 0 when unknown.
	FileBytes int64
}

// Policy holds the tunables that are not part of the plan catalog.
type Policy struct {
	Guest         guest.Limits
	GuestMaxBytes int64
	// MaxFileBytes is the engine's absolute ceiling for every principal.
	MaxFileBytes int64
	PastDueGrace time.Duration
}

// DefaultPolicy mirrors the product defaults: 3 guest uses per feature, 5 MB
// for guests, 50 MB for everyone.
func DefaultPolicy() Policy {
	return Policy{
		Guest:         guest.DefaultLimits(),
		GuestMaxBytes: 5 * 1024 * 1024,
		MaxFileBytes:  50 * 1024 * 1024,
	}
}

// Evaluator combines the catalog and policy into decisions.
type Evaluator struct {
	catalog *billing.Catalog
	policy  Policy
}

func NewEvaluator(catalog *billing.Catalog, policy Policy) *Evaluator {
	return &Evaluator{catalog: catalog, policy: policy}
}

// Access resolves sub at now under the evaluator's past_due grace.
func (e *Evaluator) Access(sub *types.SubscriptionRecord, now time.Time) billing.Access {
	return billing.ResolveAccess(sub, now, e.policy.PastDueGrace)
}

// Evaluate returns a Decision for in at now. It errors only when the inputs
// do not describe a resolvable principal or name an unknown feature or plan.
//
// Subscription access is checked before quota so that a user without access
// sees NO_SUBSCRIPTION or TRIAL_EXPIRED rather than QUOTA_EXCEEDED.
func (e *Evaluator) Evaluate(in Input, now time.Time) (types.Decision, error) {
	if err := in.Principal.Validate(); err != nil {
		return types.Decision{}, err
	}
	policy, err := billing.PolicyFor(in.Feature)
	if err != nil {
		return types.Decision{}, err
	}

	if in.Principal.Kind == types.PrincipalGuest {
		return e.evaluateGuest(in, policy)
	}
	return e.evaluateAccount(in, policy, now)
}

func (e *Evaluator) evaluateAccount(in Input, policy billing.FeaturePolicy, now time.Time) (types.Decision, error) {
	access := e.Access(in.Subscription, now)

	if policy.RequiresSubscription && !access.HasAccess {
		return deny(in.Feature, access.Reason), nil
	}

	if policy.Metered {
		limits, err := e.catalog.Limits(access.Plan)
		if err != nil {
			return types.Decision{}, err
		}
		quota, _ := limits.Quota(in.Feature)
		if quota != billing.Unbounded && in.PeriodUsage >= quota {
			if !access.HasAccess {
				// Free allowance used up: the upgrade path is a subscription.
				return deny(in.Feature, access.Reason), nil
			}
			d := deny(in.Feature, types.ReasonQuotaExceeded)
			d.Current, d.Limit = in.PeriodUsage, quota
			return d, nil
		}
	}

	if e.policy.MaxFileBytes > 0 && in.FileBytes > e.policy.MaxFileBytes {
		d := deny(in.Feature, types.ReasonFileTooLarge)
		d.Current, d.Limit = in.FileBytes, e.policy.MaxFileBytes
		return d, nil
	}
	return allow(in.Feature), nil
}

func (e *Evaluator) evaluateGuest(in Input, policy billing.FeaturePolicy) (types.Decision, error) {
	if policy.RequiresSubscription {
		return deny(in.Feature, types.ReasonNoSubscription), nil
	}

	if policy.GuestCounted {
		if in.Guest == nil {
			return types.Decision{}, types.NewAppError(types.ErrCodeAuthPrincipalUnresolved, "guest session could not be resolved", nil)
		}
		max, _ := e.policy.Guest.MaxFor(in.Feature)
		if status := guest.Project(in.Guest, in.Feature, max); !status.Allowed {
			d := deny(in.Feature, types.ReasonGuestLimitExceeded)
			d.Current, d.Limit = int64(status.CurrentCount), int64(status.MaxCount)
			return d, nil
		}
	}

	limit := e.policy.GuestMaxBytes
	if e.policy.MaxFileBytes > 0 && (limit <= 0 || e.policy.MaxFileBytes < limit) {
		limit = e.policy.MaxFileBytes
	}
	if limit > 0 && in.FileBytes > limit {
		d := deny(in.Feature, types.ReasonFileTooLarge)
		d.Current, d.Limit = in.FileBytes, limit
		return d, nil
	}
	return allow(in.Feature), nil
}

func allow(f types.Feature) types.Decision {
	return types.Decision{Allowed: true, Reason: types.ReasonOK, Feature: f}
}

func deny(f types.Feature, reason types.DenialReason) types.Decision {
	return types.Decision{Allowed: false, Reason: reason, Feature: f}
}
