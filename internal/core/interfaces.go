package core

import (
	"context"
	"time"

	"docgate/internal/types"
)

// SessionResolver validates a dashboard session cookie.
//
// Implementations return auth_session_expired for expired sessions and
// not_found_session or auth_token_invalid for unknown ones; any other error
// is treated as an infrastructure failure.
type SessionResolver interface {
	ValidateSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key in the
	// current window and reports whether the request fits within limit.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
