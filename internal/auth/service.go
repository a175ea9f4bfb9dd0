package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docgate/internal/types"
)

const defaultBcryptCost = 12

// UserRepo is the user persistence needed by AuthService.
type UserRepo interface {
	Create(ctx context.Context, u *types.User) error
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// PasswordHasher abstracts bcrypt for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// BcryptHasher hashes with a fixed cost.
type BcryptHasher struct {
	Cost int
}

func (b BcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b BcryptHasher) GenerateFromPassword(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = defaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthServiceConfig holds the dependencies of an AuthService.
type AuthServiceConfig struct {
	Users    UserRepo
	Sessions *SessionService
	Security types.SecurityService
	Hasher   PasswordHasher
	Clock    types.Clock
	Logger   *slog.Logger
}

// AuthService registers accounts and logs them in and out.
type AuthService struct {
	users    UserRepo
	sessions *SessionService
	guard    *BruteForceProtector
	hasher   PasswordHasher
	clock    types.Clock
	logger   *slog.Logger
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    cfg.Users,
		sessions: cfg.Sessions,
		guard:    NewBruteForceProtector(cfg.Security),
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
	}
}

// ClientInfo identifies the caller for session metadata and brute force
// tracking.
type ClientInfo struct {
	IP        string
	UserAgent string
}

var errInvalidCreds = types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)

func errLocked() error {
	return types.NewAppError(types.ErrCodeAuthLocked, "too many failed attempts; try again later", nil)
}

// Register creates an active account and signs it in. Accounts start on the
// implicit free tier.
func (s *AuthService) Register(ctx context.Context, email, password, name string, client ClientInfo) (*types.User, *types.Session, error) {
	email = CanonicalizeEmail(email)
	if s.guard.security.IsIPBlocked(ctx, client.IP) {
		return nil, nil, errLocked()
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	now := s.clock.Now()
	user := &types.User{
		ID:           "user_" + uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       types.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if types.CodeOf(err) == types.ErrCodeConflictEmail {
			s.guard.RecordRegistration(ctx, email, client.IP, false, "email_exists")
		}
		return nil, nil, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, client.IP, client.UserAgent)
	if err != nil {
		return nil, nil, err
	}
	s.guard.RecordRegistration(ctx, email, client.IP, true, "")

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, session, nil
}

// Login verifies credentials and creates a session. Unknown emails and wrong
// passwords return the same auth_invalid_credentials error. A blocked email
// or IP yields auth_account_locked before any credential check.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*types.User, *types.Session, error) {
	email = CanonicalizeEmail(email)
	if !s.guard.CheckLoginAllowed(ctx, email, client.IP) {
		s.logger.WarnContext(ctx, "login blocked", "ip", client.IP)
		return nil, nil, errLocked()
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeNotFoundUser {
			s.guard.RecordLogin(ctx, email, client.IP, false, "user_not_found")
			return nil, nil, errInvalidCreds
		}
		return nil, nil, err
	}

	if user.PasswordHash == "" || s.hasher.CompareHashAndPassword(user.PasswordHash, password) != nil {
		s.guard.RecordLogin(ctx, email, client.IP, false, "invalid_creds")
		return nil, nil, errInvalidCreds
	}

	if user.Status != types.UserStatusActive {
		s.guard.RecordLogin(ctx, email, client.IP, false, "account_not_active")
		return nil, nil, types.NewAppError(types.ErrCodeAuthAccountNotActive, "account not active", nil)
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, client.IP, client.UserAgent)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	s.guard.RecordLogin(ctx, email, client.IP, true, "")

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return user, session, nil
}

// Logout deletes the session. An empty id is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.InvalidateSession(ctx, sessionID)
}
