package auth

import (
	"context"
	"io"
	"log/slog"
	"time"

	"docgate/internal/db"
	"docgate/internal/types"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memSessions struct {
	byID      map[string]*types.Session
	createErr error
	touchErr  error
	touched   []string
	deleted   []string
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*types.Session{}}
}

func (m *memSessions) Create(_ context.Context, s *types.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (*types.Session, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Touch(_ context.Context, id string, at, expiresAt time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched = append(m.touched, id)
	if s, ok := m.byID[id]; ok {
		s.LastActivityAt = at
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.byID, id)
	return nil
}

type seqTokens struct {
	n int
}

func (g *seqTokens) GenerateSessionID() (string, error) {
	g.n++
	return "sess_" + string(rune('a'+g.n-1)), nil
}

func (g *seqTokens) GenerateCSRF() (string, error) {
	return "csrf_" + string(rune('a'+g.n-1)), nil
}

type memSecurity struct {
	events      []types.SecurityEvent
	ipFailures  map[string]int
	idFailures  map[string]int
	countErr    error
	lastSinceIP time.Time
}

func (m *memSecurity) LogAttempt(_ context.Context, e *types.SecurityEvent) error {
	m.events = append(m.events, *e)
	return nil
}

func (m *memSecurity) CountFailures(_ context.Context, f db.FailureFilter) (int, error) {
	if f.IP != "" {
		m.lastSinceIP = f.Since
		return m.ipFailures[f.IP], m.countErr
	}
	return m.idFailures[f.Identifier], m.countErr
}

type memUsers struct {
	byEmail   map[string]*types.User
	lastLogin map[string]time.Time
	getErr    error
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: map[string]*types.User{}, lastLogin: map[string]time.Time{}}
}

func (m *memUsers) Create(_ context.Context, u *types.User) error {
	if _, ok := m.byEmail[u.Email]; ok {
		return types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil)
	}
	cp := *u
	m.byEmail[u.Email] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*types.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byEmail[email]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	m.lastLogin[userID] = at
	return nil
}

// plainHasher stores passwords with a marker prefix so tests avoid bcrypt's
// cost.
type plainHasher struct{}

func (plainHasher) CompareHashAndPassword(hashed, password string) error {
	if hashed != "hash:"+password {
		return errMismatch
	}
	return nil
}

func (plainHasher) GenerateFromPassword(password string) (string, error) {
	return "hash:" + password, nil
}

var errMismatch = types.NewAppError(types.ErrCodeAuthInvalidCreds, "mismatch", nil)
