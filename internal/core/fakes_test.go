package core

import (
	"context"
	"sync"
	"time"

	"docgate/internal/types"
)

// fakeSessions resolves cookie values from a map.
type fakeSessions struct {
	sessions map[string]*types.Session
	err      error

	mu    sync.Mutex
	calls []string
}

func (f *fakeSessions) ValidateSession(_ context.Context, sessionID string) (*types.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sessionID)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[sessionID]; ok {
		return s, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
}

type rateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

// fakeRateLimits answers every check with result and err.
type fakeRateLimits struct {
	result RateLimitResult
	err    error

	mu    sync.Mutex
	calls []rateLimitCall
}

func (f *fakeRateLimits) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rateLimitCall{Key: key, Limit: limit, Window: window})
	return f.result, f.err
}

// fakeSecurity blocks a fixed set of IPs.
type fakeSecurity struct {
	blockedIPs map[string]bool
}

func (f *fakeSecurity) RecordAttempt(context.Context, string, string, string, bool, string) error {
	return nil
}

func (f *fakeSecurity) IsIPBlocked(_ context.Context, ip string) bool { return f.blockedIPs[ip] }

func (f *fakeSecurity) IsIdentifierBlocked(context.Context, string) bool { return false }

var (
	_ SessionResolver       = (*fakeSessions)(nil)
	_ RateLimitStore        = (*fakeRateLimits)(nil)
	_ types.SecurityService = (*fakeSecurity)(nil)
)
