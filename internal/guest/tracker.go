// Package guest tracks anonymous usage counters per IP address.
//
// A guest session covers one rolling window (24h by default). Counters only
// move up; when a session expires the next request from the IP starts a new
// session at zero. Expired sessions stay in the store for audit until the
// maintenance sweep removes them.
package guest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docgate/internal/types"
)

// Store is the persistence contract for guest sessions.
type Store interface {
	// LatestActiveByIP returns the most recently created session for ip that
	// has not expired at now, or nil when there is none.
	LatestActiveByIP(ctx context.Context, ip string, now time.Time) (*types.GuestSession, error)
	Create(ctx context.Context, session *types.GuestSession) error
	// GetByID returns a not_found AppError when the id is unknown.
	GetByID(ctx context.Context, id string) (*types.GuestSession, error)
	// IncrementIfBelow atomically bumps the feature counter when the session
	// is unexpired at now and the counter is below max. ok is false when no
	// row qualified.
	IncrementIfBelow(ctx context.Context, id string, feature types.Feature, max int, now time.Time) (session *types.GuestSession, ok bool, err error)
}

// Limits configures the per-session allowances.
type Limits struct {
	MaxRedactions int
	MaxMerges     int
	TTL           time.Duration
}

// DefaultLimits are three redactions and three merges per 24h.
func DefaultLimits() Limits {
	return Limits{MaxRedactions: 3, MaxMerges: 3, TTL: 24 * time.Hour}
}

// MaxFor returns the allowance for f. ok is false for features without a
// guest counter.
func (l Limits) MaxFor(f types.Feature) (int, bool) {
	switch f {
	case types.FeatureRedaction:
		return l.MaxRedactions, true
	case types.FeatureMerge:
		return l.MaxMerges, true
	}
	return 0, false
}

// Tracker owns guest session reads and the atomic counter increment.
type Tracker struct {
	store  Store
	limits Limits
	newID  func() string
	logger *slog.Logger
}

func NewTracker(store Store, limits Limits, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.TTL <= 0 {
		limits.TTL = DefaultLimits().TTL
	}
	return &Tracker{
		store:  store,
		limits: limits,
		newID:  func() string { return "gs_" + uuid.NewString() },
		logger: logger,
	}
}

// Limits returns the configured allowances.
func (t *Tracker) Limits() Limits {
	return t.limits
}

// GetOrCreate returns the authoritative session for ip, creating a fresh one
// with zero counts when none is live.
func (t *Tracker) GetOrCreate(ctx context.Context, ip string, now time.Time) (*types.GuestSession, error) {
	existing, err := t.store.LatestActiveByIP(ctx, ip, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := &types.GuestSession{
		ID:           t.newID(),
		IPAddress:    ip,
		CreatedAt:    now,
		ExpiresAt:    now.Add(t.limits.TTL),
		LastActivity: now,
	}
	if err := t.store.Create(ctx, session); err != nil {
		return nil, err
	}
	t.logger.InfoContext(ctx, "guest session created",
		"guest_session_id", session.ID,
		"expires_at", session.ExpiresAt,
	)
	return session, nil
}

// Resolve returns the session named by id when it is live and belongs to ip,
// and otherwise falls back to GetOrCreate for ip.
func (t *Tracker) Resolve(ctx context.Context, id, ip string, now time.Time) (*types.GuestSession, error) {
	session, err := t.Peek(ctx, id, ip, now)
	if err != nil || session != nil {
		return session, err
	}
	return t.GetOrCreate(ctx, ip, now)
}

// Peek is Resolve without the create: it returns nil when ip has no live
// session.
func (t *Tracker) Peek(ctx context.Context, id, ip string, now time.Time) (*types.GuestSession, error) {
	if id != "" {
		session, err := t.store.GetByID(ctx, id)
		switch {
		case err == nil:
			if !session.Expired(now) && session.IPAddress == ip {
				return session, nil
			}
		case types.CodeOf(err) != types.ErrCodeAuthGuestSessionNotFound:
			return nil, err
		}
	}
	return t.store.LatestActiveByIP(ctx, ip, now)
}

// Increment consumes one unit of f. It fails with auth_guest_session_expired
// when now is past the session expiry and with GUEST_LIMIT_EXCEEDED when the
// allowance is used up.
func (t *Tracker) Increment(ctx context.Context, id string, f types.Feature, now time.Time) (*types.GuestSession, error) {
	max, ok := t.limits.MaxFor(f)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFeature, fmt.Sprintf("feature %q has no guest counter", f), nil)
	}

	session, ok, err := t.store.IncrementIfBelow(ctx, id, f, max, now)
	if err != nil {
		return nil, err
	}
	if ok {
		return session, nil
	}

	// Nothing matched; find out why.
	current, err := t.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Expired(now) {
		return nil, types.NewAppError(types.ErrCodeAuthGuestSessionExpired, "guest session has expired", nil)
	}
	return nil, types.Decision{
		Reason:  types.ReasonGuestLimitExceeded,
		Feature: f,
		Current: int64(current.Count(f)),
		Limit:   int64(max),
	}.Err()
}

// CheckLimit is a read-only projection of the counter for f.
func (t *Tracker) CheckLimit(ctx context.Context, id string, f types.Feature) (types.LimitStatus, error) {
	max, ok := t.limits.MaxFor(f)
	if !ok {
		return types.LimitStatus{}, types.NewAppError(types.ErrCodeValidationInvalidFeature, fmt.Sprintf("feature %q has no guest counter", f), nil)
	}
	session, err := t.store.GetByID(ctx, id)
	if err != nil {
		return types.LimitStatus{}, err
	}
	return Project(session, f, max), nil
}

// Project computes the limit status of f on session without I/O.
func Project(session *types.GuestSession, f types.Feature, max int) types.LimitStatus {
	count := session.Count(f)
	return types.LimitStatus{
		Allowed:      count < max,
		CurrentCount: count,
		MaxCount:     max,
	}
}
