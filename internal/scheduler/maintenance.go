package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultGuestRetention keeps expired guest sessions around for abuse
	// review before they are deleted.
	DefaultGuestRetention = 30 * 24 * time.Hour

	// DefaultSecurityEventRetention bounds the brute force audit trail. It
	// must exceed the longest block window.
	DefaultSecurityEventRetention = 7 * 24 * time.Hour
)

// GuestSweeper deletes guest sessions that expired before a cutoff.
type GuestSweeper interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiredDeleter deletes rows whose lifetime ended before cutoff. Sessions
// and job locks both implement it.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityEventPruner deletes login attempts recorded before cutoff.
type SecurityEventPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupConfig holds the retention windows used by CleanupService.
type CleanupConfig struct {
	GuestRetention         time.Duration
	SecurityEventRetention time.Duration
}

// CleanupService runs the deletion sweeps. Each sweep is a single bounded
// DELETE, so a partial failure leaves nothing to undo.
type CleanupService struct {
	guests   GuestSweeper
	sessions ExpiredDeleter
	locks    ExpiredDeleter
	security SecurityEventPruner
	cfg      CleanupConfig
	logger   *slog.Logger
}

// NewCleanupService builds a CleanupService. Zero retentions take the
// package defaults; a nil locks store skips lock pruning.
func NewCleanupService(guests GuestSweeper, sessions ExpiredDeleter, locks ExpiredDeleter, security SecurityEventPruner, cfg CleanupConfig, logger *slog.Logger) *CleanupService {
	if cfg.GuestRetention <= 0 {
		cfg.GuestRetention = DefaultGuestRetention
	}
	if cfg.SecurityEventRetention <= 0 {
		cfg.SecurityEventRetention = DefaultSecurityEventRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		guests:   guests,
		sessions: sessions,
		locks:    locks,
		security: security,
		cfg:      cfg,
		logger:   logger,
	}
}

// SweepGuestSessions deletes guest sessions that expired more than the
// guest retention before now.
func (s *CleanupService) SweepGuestSessions(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.GuestRetention)
	n, err := s.guests.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping guest sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "guest sessions swept",
		"deleted", n,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return int(n), nil
}

// SweepSessions deletes login sessions that have already expired.
func (s *CleanupService) SweepSessions(ctx context.Context, now time.Time) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "sessions swept", "deleted", n)
	return int(n), nil
}

// PurgeSecurityEvents prunes the login attempt log and any job locks whose
// lease has ended.
func (s *CleanupService) PurgeSecurityEvents(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.SecurityEventRetention)
	events, err := s.security.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging security events: %w", err)
	}

	var locks int64
	if s.locks != nil {
		locks, err = s.locks.DeleteExpired(ctx, now)
		if err != nil {
			return int(events), fmt.Errorf("pruning job locks: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "security events purged",
		"events_deleted", events,
		"locks_deleted", locks,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return int(events + locks), nil
}
