package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docgate/internal/types"
)

// touchInterval bounds how often activity extends a session, so steady
// traffic does not write on every request.
const touchInterval = 15 * time.Minute

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	// SessionDuration is the lifetime of a new session and the sliding
	// extension applied on activity.
	SessionDuration time.Duration
}

// DefaultSessionConfig returns a 7 day session lifetime.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{SessionDuration: 7 * 24 * time.Hour}
}

// SessionRepo is the persistence needed by SessionService.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByID(ctx context.Context, sessionID string) (*types.Session, error)
	Touch(ctx context.Context, sessionID string, at, expiresAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateSessionID() (string, error)
	GenerateCSRF() (string, error)
}

// SessionService issues and validates dashboard login sessions.
type SessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger
}

func NewSessionService(repo SessionRepo, tokenGen TokenGenerator, config SessionConfig, clock types.Clock, logger *slog.Logger) *SessionService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tokenGen == nil {
		tokenGen = NewCryptoTokenGenerator()
	}
	if config.SessionDuration <= 0 {
		config = DefaultSessionConfig()
	}
	return &SessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSession generates the session ID and CSRF token and stores the
// session.
func (s *SessionService) CreateSession(ctx context.Context, userID, ip, userAgent string) (*types.Session, error) {
	sessionID, err := s.tokenGen.GenerateSessionID()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session ID", err)
	}
	csrfToken, err := s.tokenGen.GenerateCSRF()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate CSRF token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:             sessionID,
		UserID:         userID,
		CSRFToken:      csrfToken,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ExpiresAt:      now.Add(s.config.SessionDuration),
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "session created", "user_id", userID)
	return session, nil
}

// ValidateSession returns the live session for sessionID. Expired sessions
// yield auth_session_expired and are left for the sweep. Activity older than
// touchInterval slides the expiry forward; a failed touch is logged and does
// not reject the request.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !now.Before(session.ExpiresAt) {
		s.logger.InfoContext(ctx, "session expired",
			"user_id", session.UserID,
			"expired_at", session.ExpiresAt,
		)
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}

	if now.Sub(session.LastActivityAt) >= touchInterval {
		expires := now.Add(s.config.SessionDuration)
		if err := s.repo.Touch(ctx, session.ID, now, expires); err != nil {
			s.logger.WarnContext(ctx, "failed to extend session", "user_id", session.UserID, "error", err)
		} else {
			session.LastActivityAt = now
			session.ExpiresAt = expires
		}
	}
	return session, nil
}

// InvalidateSession deletes a single session so logout takes effect
// immediately.
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session invalidated")
	return nil
}

// CryptoTokenGenerator draws tokens from crypto/rand.
type CryptoTokenGenerator struct {
	SessionIDPrefix string
}

func NewCryptoTokenGenerator() *CryptoTokenGenerator {
	return &CryptoTokenGenerator{SessionIDPrefix: "sess_"}
}

// GenerateSessionID returns the prefix followed by 64 hex characters.
func (g *CryptoTokenGenerator) GenerateSessionID() (string, error) {
	tok, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return g.SessionIDPrefix + tok, nil
}

func (g *CryptoTokenGenerator) GenerateCSRF() (string, error) {
	tok, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate CSRF token: %w", err)
	}
	return tok, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CanonicalizeEmail normalizes email addresses for lookups and brute force
// tracking.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
