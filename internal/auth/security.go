// Package auth implements dashboard accounts: password login and
// registration, cookie sessions with CSRF tokens, and brute force
// protection keyed by IP and by email.
package auth

import (
	"context"
	"log/slog"
	"time"

	"docgate/internal/config"
	"docgate/internal/db"
	"docgate/internal/types"
)

// Security event types.
const (
	EventLogin    = "login"
	EventRegister = "register"
)

// SecurityConfig holds the brute force thresholds.
type SecurityConfig struct {
	// IPBlockThreshold is the number of failures from one IP, across all
	// event types, that blocks the IP for the rest of the window.
	IPBlockThreshold int

	// IdentifierBlockThreshold is the number of failed logins for one email
	// that blocks further attempts for the rest of the window.
	IdentifierBlockThreshold int

	WindowDuration time.Duration
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IPBlockThreshold:         100,
		IdentifierBlockThreshold: 5,
		WindowDuration:           15 * time.Minute,
	}
}

// SecurityConfigFrom reads thresholds from the service configuration,
// keeping defaults for unset values.
func SecurityConfigFrom(cfg config.SecurityConfig) SecurityConfig {
	out := DefaultSecurityConfig()
	if cfg.IPBlockThreshold > 0 {
		out.IPBlockThreshold = cfg.IPBlockThreshold
	}
	if cfg.IdentifierBlockThreshold > 0 {
		out.IdentifierBlockThreshold = cfg.IdentifierBlockThreshold
	}
	if cfg.BlockWindow > 0 {
		out.WindowDuration = cfg.BlockWindow
	}
	return out
}

// SecurityRepo is the persistence needed by the security service.
type SecurityRepo interface {
	LogAttempt(ctx context.Context, event *types.SecurityEvent) error
	CountFailures(ctx context.Context, f db.FailureFilter) (int, error)
}

type securityService struct {
	repo   SecurityRepo
	config SecurityConfig
	clock  types.Clock
	logger *slog.Logger
}

// NewSecurityService returns a types.SecurityService backed by repo.
func NewSecurityService(repo SecurityRepo, config SecurityConfig, clock types.Clock, logger *slog.Logger) types.SecurityService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &securityService{
		repo:   repo,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

func (s *securityService) RecordAttempt(ctx context.Context, eventType string, identifier string, ip string, success bool, reason string) error {
	event := &types.SecurityEvent{
		EventType:     eventType,
		Identifier:    identifier,
		IPAddress:     ip,
		AttemptedAt:   s.clock.Now(),
		Success:       success,
		FailureReason: reason,
	}
	if err := s.repo.LogAttempt(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record security attempt",
			"event_type", eventType,
			"ip", ip,
			"error", err,
		)
		return err
	}
	return nil
}

// IsIPBlocked fails open when the store is unavailable.
func (s *securityService) IsIPBlocked(ctx context.Context, ip string) bool {
	count, err := s.repo.CountFailures(ctx, db.FailureFilter{
		IP:    ip,
		Since: s.clock.Now().Add(-s.config.WindowDuration),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check IP block status", "ip", ip, "error", err)
		return false
	}
	return count >= s.config.IPBlockThreshold
}

// IsIdentifierBlocked fails open when the store is unavailable.
func (s *securityService) IsIdentifierBlocked(ctx context.Context, identifier string) bool {
	count, err := s.repo.CountFailures(ctx, db.FailureFilter{
		Identifier: identifier,
		EventType:  EventLogin,
		Since:      s.clock.Now().Add(-s.config.WindowDuration),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check identifier block status", "error", err)
		return false
	}
	return count >= s.config.IdentifierBlockThreshold
}

// BruteForceProtector is the login-facing view of a SecurityService.
type BruteForceProtector struct {
	security types.SecurityService
}

func NewBruteForceProtector(security types.SecurityService) *BruteForceProtector {
	return &BruteForceProtector{security: security}
}

// CheckLoginAllowed reports whether neither the email nor the IP is
// currently blocked.
func (b *BruteForceProtector) CheckLoginAllowed(ctx context.Context, email, ip string) bool {
	if b.security.IsIdentifierBlocked(ctx, email) {
		return false
	}
	return !b.security.IsIPBlocked(ctx, ip)
}

// RecordLogin records a login outcome. reason is ignored on success.
func (b *BruteForceProtector) RecordLogin(ctx context.Context, email, ip string, success bool, reason string) {
	if success {
		reason = ""
	}
	_ = b.security.RecordAttempt(ctx, EventLogin, email, ip, success, reason)
}

// RecordRegistration records a registration outcome. Failed registrations
// count toward the IP threshold only.
func (b *BruteForceProtector) RecordRegistration(ctx context.Context, email, ip string, success bool, reason string) {
	if success {
		reason = ""
	}
	_ = b.security.RecordAttempt(ctx, EventRegister, email, ip, success, reason)
}
