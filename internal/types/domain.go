package types

import (
	"net"
	"time"
)

// User is an account holder.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	PasswordHash     string     `json:"-"`
	Status           UserStatus `json:"status"`
	StripeCustomerID string     `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Session is a dashboard login session addressed by an opaque cookie value.
type Session struct {
	ID             string    `json:"-"`
	UserID         string    `json:"user_id"`
	CSRFToken      string    `json:"-"`
	IPAddress      string    `json:"-"`
	UserAgent      string    `json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// SecurityEvent records an authentication attempt for brute force tracking.
type SecurityEvent struct {
	EventType     string
	Identifier    string
	IPAddress     string
	AttemptedAt   time.Time
	Success       bool
	FailureReason string
}

// SubscriptionRecord is the last-synced billing snapshot for one user. A user
// without a record is on the implicit free tier.
type SubscriptionRecord struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"user_id"`
	Plan                   PlanTier           `json:"plan"`
	Status                 SubscriptionStatus `json:"status"`
	TrialStart             *time.Time         `json:"trial_start,omitempty"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	ExternalSubscriptionID string             `json:"-"`
	ExternalCustomerID     string             `json:"-"`
	LastEventAt            *time.Time         `json:"-"`
	LastEventID            string             `json:"-"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// FreeSubscription is the implicit record for users who never subscribed.
func FreeSubscription(userID string) *SubscriptionRecord {
	return &SubscriptionRecord{UserID: userID, Plan: PlanFree, Status: SubscriptionNone}
}

// TrialActive reports whether the record grants trial-derived access at now.
func (s *SubscriptionRecord) TrialActive(now time.Time) bool {
	return s.Status == SubscriptionTrialing && s.TrialEnd != nil && s.TrialEnd.After(now)
}

// PeriodActive reports whether the record grants paid access at now.
func (s *SubscriptionRecord) PeriodActive(now time.Time) bool {
	return s.Status == SubscriptionActive && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now)
}

// GuestSession counts anonymous feature use for one IP within a 24h window.
type GuestSession struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivity   time.Time `json:"last_activity"`
	RedactionCount int       `json:"redaction_count"`
	MergeCount     int       `json:"merge_count"`
}

// Expired reports whether the session can no longer be incremented.
func (g *GuestSession) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Count returns the counter tracked for f. Features without a guest counter
// report zero.
func (g *GuestSession) Count(f Feature) int {
	switch f {
	case FeatureRedaction:
		return g.RedactionCount
	case FeatureMerge:
		return g.MergeCount
	}
	return 0
}

// UsageRecord is one append-only feature-use event.
type UsageRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Feature   Feature        `json:"feature"`
	Count     int            `json:"count"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Activity is an audit entry for a user-initiated operation shown on the
// dashboard. It plays no part in entitlement decisions.
type Activity struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	GuestSessionID string         `json:"guest_session_id,omitempty"`
	Type           Feature        `json:"type"`
	Action         string         `json:"action"`
	FileName       string         `json:"file_name,omitempty"`
	Status         ActivityStatus `json:"status"`
	DurationMs     int64          `json:"duration_ms"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Principal is the identity an entitlement check is made for. Exactly one of
// UserID or GuestSessionID is set, matching Kind.
type Principal struct {
	Kind           PrincipalKind
	UserID         string
	GuestSessionID string
	IPAddress      string
}

// AccountPrincipal builds a principal for an authenticated user.
func AccountPrincipal(userID, ip string) Principal {
	return Principal{Kind: PrincipalAccount, UserID: userID, IPAddress: ip}
}

// GuestPrincipal builds a principal for an anonymous caller. sessionID may be
// empty when the caller has not been issued a session yet.
func GuestPrincipal(sessionID, ip string) Principal {
	return Principal{Kind: PrincipalGuest, GuestSessionID: sessionID, IPAddress: ip}
}

// Validate rejects principals that are neither or both kinds.
func (p Principal) Validate() error {
	switch p.Kind {
	case PrincipalAccount:
		if p.UserID == "" || p.GuestSessionID != "" {
			return NewAppError(ErrCodeAuthPrincipalUnresolved, "account principal requires a user id only", nil)
		}
	case PrincipalGuest:
		if p.UserID != "" {
			return NewAppError(ErrCodeAuthPrincipalUnresolved, "guest principal cannot carry a user id", nil)
		}
		if net.ParseIP(p.IPAddress) == nil {
			return NewAppError(ErrCodeValidationInvalidIP, "guest principal requires a valid IP address", nil)
		}
	default:
		return NewAppError(ErrCodeAuthPrincipalUnresolved, "principal could not be resolved", nil)
	}
	return nil
}

// RateLimitKey identifies the principal for per-caller throttling.
func (p Principal) RateLimitKey() string {
	if p.Kind == PrincipalAccount {
		return "user:" + p.UserID
	}
	if p.GuestSessionID != "" {
		return "guest:" + p.GuestSessionID
	}
	return "ip:" + p.IPAddress
}

// Decision is the outcome of an entitlement check. Denials are policy
// outcomes, so Retryable is always false.
type Decision struct {
	Allowed   bool         `json:"allowed"`
	Reason    DenialReason `json:"reason"`
	Retryable bool         `json:"retryable"`
	Feature   Feature      `json:"feature"`
	Current   int64        `json:"current,omitempty"`
	Limit     int64        `json:"limit,omitempty"`
}

var denialMessages = map[DenialReason]string{
	ReasonNoSubscription:     "this feature requires an active subscription",
	ReasonTrialExpired:       "your trial has ended; upgrade to continue",
	ReasonQuotaExceeded:      "you have used this feature's allowance for the current period",
	ReasonGuestLimitExceeded: "guest limit reached; create an account to continue",
	ReasonFileTooLarge:       "file exceeds the maximum size for your plan",
}

// Err converts a denial into the AppError returned to clients. It returns nil
// for an allowed decision.
func (d Decision) Err() *AppError {
	if d.Allowed {
		return nil
	}
	details := map[string]any{"feature": string(d.Feature)}
	if d.Limit > 0 {
		details["current"] = d.Current
		details["max"] = d.Limit
	}
	return NewAppErrorWithDetails(ErrorCode(d.Reason), denialMessages[d.Reason], nil, details)
}

// LimitStatus is the read-only projection of a guest counter.
type LimitStatus struct {
	Allowed      bool `json:"allowed"`
	CurrentCount int  `json:"currentCount"`
	MaxCount     int  `json:"maxCount"`
}
