package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock pinned to a single instant.
type FixedClock struct{ T time.Time }

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return c.T }

// SecurityService provides security event tracking and IP-based blocking.
type SecurityService interface {
	// RecordAttempt logs a security event (login, register) for tracking.
	RecordAttempt(ctx context.Context, eventType string, identifier string, ip string, success bool, reason string) error

	// IsIPBlocked checks if an IP address should be blocked based on recent failed attempts.
	IsIPBlocked(ctx context.Context, ip string) bool

	// IsIdentifierBlocked checks if a specific identifier (e.g., email) should be blocked.
	IsIdentifierBlocked(ctx context.Context, identifier string) bool
}

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}
