package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

type authFixture struct {
	svc      *AuthService
	users    *memUsers
	sessions *memSessions
	security *memSecurity
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		security: &memSecurity{ipFailures: map[string]int{}, idFailures: map[string]int{}},
	}
	clock := types.FixedClock{T: testNow}
	f.svc = NewAuthService(AuthServiceConfig{
		Users:    f.users,
		Sessions: NewSessionService(f.sessions, &seqTokens{}, DefaultSessionConfig(), clock, discardLogger()),
		Security: NewSecurityService(f.security, DefaultSecurityConfig(), clock, discardLogger()),
		Hasher:   plainHasher{},
		Clock:    clock,
		Logger:   discardLogger(),
	})
	return f
}

var client = ClientInfo{IP: "203.0.113.9", UserAgent: "tests"}

func TestRegister(t *testing.T) {
	f := newAuthFixture()

	user, session, err := f.svc.Register(context.Background(), " Ada@Example.com", "correct horse", "Ada", client)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, types.UserStatusActive, user.Status)
	assert.Equal(t, "hash:correct horse", f.users.byEmail["ada@example.com"].PasswordHash)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "tests", session.UserAgent)
	require.Len(t, f.security.events, 1)
	assert.Equal(t, EventRegister, f.security.events[0].EventType)
	assert.True(t, f.security.events[0].Success)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	_, _, err := f.svc.Register(context.Background(), "ada@example.com", "correct horse", "", client)
	require.NoError(t, err)

	_, _, err = f.svc.Register(context.Background(), "ADA@example.com", "other pass", "", client)
	assert.Equal(t, types.ErrCodeConflictEmail, types.CodeOf(err))
	assert.False(t, f.security.events[len(f.security.events)-1].Success)
}

func TestRegister_BlockedIP(t *testing.T) {
	f := newAuthFixture()
	f.security.ipFailures[client.IP] = 100

	_, _, err := f.svc.Register(context.Background(), "ada@example.com", "correct horse", "", client)
	assert.Equal(t, types.ErrCodeAuthLocked, types.CodeOf(err))
	assert.Empty(t, f.users.byEmail)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	_, _, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "", client)
	require.NoError(t, err)

	user, session, err := f.svc.Login(ctx, "ADA@example.com", "correct horse", client)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, testNow, f.users.lastLogin[user.ID])
	require.NotNil(t, user.LastLoginAt)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *authFixture)
		email  string
		pass   string
		want   types.ErrorCode
		reason string
	}{
		{
			name:   "unknown email",
			email:  "nobody@example.com",
			pass:   "x",
			want:   types.ErrCodeAuthInvalidCreds,
			reason: "user_not_found",
		},
		{
			name:   "wrong password",
			email:  "ada@example.com",
			pass:   "wrong",
			want:   types.ErrCodeAuthInvalidCreds,
			reason: "invalid_creds",
		},
		{
			name: "disabled account",
			setup: func(f *authFixture) {
				f.users.byEmail["ada@example.com"].Status = types.UserStatusDisabled
			},
			email:  "ada@example.com",
			pass:   "correct horse",
			want:   types.ErrCodeAuthAccountNotActive,
			reason: "account_not_active",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()
			ctx := context.Background()
			_, _, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "", client)
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, _, err = f.svc.Login(ctx, tt.email, tt.pass, client)
			assert.Equal(t, tt.want, types.CodeOf(err))

			last := f.security.events[len(f.security.events)-1]
			assert.Equal(t, EventLogin, last.EventType)
			assert.False(t, last.Success)
			assert.Equal(t, tt.reason, last.FailureReason)
		})
	}
}

func TestLogin_Locked(t *testing.T) {
	t.Run("by email", func(t *testing.T) {
		f := newAuthFixture()
		f.security.idFailures["ada@example.com"] = 5
		_, _, err := f.svc.Login(context.Background(), "ada@example.com", "correct horse", client)
		assert.Equal(t, types.ErrCodeAuthLocked, types.CodeOf(err))
		assert.Empty(t, f.security.events)
	})

	t.Run("by ip", func(t *testing.T) {
		f := newAuthFixture()
		f.security.ipFailures[client.IP] = 100
		_, _, err := f.svc.Login(context.Background(), "ada@example.com", "correct horse", client)
		assert.Equal(t, types.ErrCodeAuthLocked, types.CodeOf(err))
	})
}

func TestLogout(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	_, session, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "", client)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, session.ID))
	assert.Equal(t, []string{session.ID}, f.sessions.deleted)

	require.NoError(t, f.svc.Logout(ctx, ""))
	assert.Len(t, f.sessions.deleted, 1)
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.GenerateFromPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, h.CompareHashAndPassword(hash, "correct horse"))
	assert.Error(t, h.CompareHashAndPassword(hash, "wrong"))
}
