package types

import "fmt"

// PlanTier is the closed set of subscription plans.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanSolo       PlanTier = "solo"
	PlanFirm       PlanTier = "firm"
	PlanEnterprise PlanTier = "enterprise"
)

// AllPlanTiers returns every tier in ascending order.
func AllPlanTiers() []PlanTier {
	return []PlanTier{PlanFree, PlanSolo, PlanFirm, PlanEnterprise}
}

// Valid reports whether p is a known tier.
func (p PlanTier) Valid() bool {
	switch p {
	case PlanFree, PlanSolo, PlanFirm, PlanEnterprise:
		return true
	}
	return false
}

// ParsePlanTier converts a raw string into a PlanTier. Unknown values are an
// error, never a silent fallback to free.
func ParsePlanTier(s string) (PlanTier, error) {
	p := PlanTier(s)
	if !p.Valid() {
		return "", NewAppError(ErrCodeValidationInvalidPlan, fmt.Sprintf("unknown plan %q", s), nil)
	}
	return p, nil
}

// SubscriptionStatus is the billing state of a SubscriptionRecord.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// Feature identifies a gated product capability.
type Feature string

const (
	FeatureRedaction     Feature = "redaction"
	FeatureMerge         Feature = "merge"
	FeatureAutoDetectPII Feature = "auto_detect_pii"
	FeatureConvert       Feature = "convert"
	FeatureCompress      Feature = "compress"
	FeatureSplit         Feature = "split"
)

// AllFeatures returns every known feature.
func AllFeatures() []Feature {
	return []Feature{FeatureRedaction, FeatureMerge, FeatureAutoDetectPII, FeatureConvert, FeatureCompress, FeatureSplit}
}

// ParseFeature converts a raw string into a Feature. The camel-case form
// "autoDetectPii" used by older clients is accepted.
func ParseFeature(s string) (Feature, error) {
	if s == "autoDetectPii" {
		return FeatureAutoDetectPII, nil
	}
	for _, f := range AllFeatures() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", NewAppError(ErrCodeValidationInvalidFeature, fmt.Sprintf("unknown feature %q", s), nil)
}

// DenialReason is the machine-readable outcome of an entitlement check.
type DenialReason string

const (
	ReasonOK                 DenialReason = "OK"
	ReasonNoSubscription     DenialReason = "NO_SUBSCRIPTION"
	ReasonTrialExpired       DenialReason = "TRIAL_EXPIRED"
	ReasonQuotaExceeded      DenialReason = "QUOTA_EXCEEDED"
	ReasonGuestLimitExceeded DenialReason = "GUEST_LIMIT_EXCEEDED"
	ReasonFileTooLarge       DenialReason = "FILE_TOO_LARGE"
)

// PrincipalKind distinguishes authenticated accounts from anonymous guests.
type PrincipalKind string

const (
	PrincipalAccount PrincipalKind = "account"
	PrincipalGuest   PrincipalKind = "guest"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// ActivityStatus is the outcome recorded for a user-initiated operation.
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
)
