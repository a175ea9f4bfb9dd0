package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/auth"
	"docgate/internal/core"
	"docgate/internal/types"
)

type fakeAuthService struct {
	user      *types.User
	session   *types.Session
	err       error
	logoutErr error

	gotEmail  string
	gotClient auth.ClientInfo
	loggedOut []string
}

func (f *fakeAuthService) Register(_ context.Context, email, _, _ string, client auth.ClientInfo) (*types.User, *types.Session, error) {
	f.gotEmail, f.gotClient = email, client
	return f.user, f.session, f.err
}

func (f *fakeAuthService) Login(_ context.Context, email, _ string, client auth.ClientInfo) (*types.User, *types.Session, error) {
	f.gotEmail, f.gotClient = email, client
	return f.user, f.session, f.err
}

func (f *fakeAuthService) Logout(_ context.Context, sessionID string) error {
	f.loggedOut = append(f.loggedOut, sessionID)
	return f.logoutErr
}

func newSignedIn() *fakeAuthService {
	return &fakeAuthService{
		user: &types.User{ID: "user_1", Email: "ada@example.com", Status: types.UserStatusActive},
		session: &types.Session{
			ID:        "sess_abc",
			UserID:    "user_1",
			CSRFToken: "csrf_abc",
			ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		},
	}
}

func TestHandleLogin(t *testing.T) {
	svc := newSignedIn()
	h := NewAuthHandler(svc, DefaultCookieConfig(), testValidator(), discardLogger())

	rec := serve(t, h, types.Principal{}, http.MethodPost, "/auth/login", LoginRequest{
		Email: "ada@example.com", Password: "correct horse",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "csrf_abc", resp.CSRFToken)
	assert.Equal(t, "user_1", resp.User.ID)
	assert.NotContains(t, rec.Body.String(), "sess_abc")

	c := findCookie(rec, core.SessionCookieName)
	require.NotNil(t, c)
	assert.Equal(t, "sess_abc", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Greater(t, c.MaxAge, 0)
	assert.Equal(t, "192.0.2.1", svc.gotClient.IP)
}

func TestHandleLogin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		err    error
		status int
		code   string
	}{
		{"invalid email", LoginRequest{Email: "nope", Password: "x"}, nil, http.StatusBadRequest, "validation_failed"},
		{"malformed json", `{"email":`, nil, http.StatusBadRequest, "validation_invalid_json"},
		{"bad credentials", LoginRequest{Email: "ada@example.com", Password: "x"},
			types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil), http.StatusUnauthorized, "auth_invalid_credentials"},
		{"locked", LoginRequest{Email: "ada@example.com", Password: "x"},
			types.NewAppError(types.ErrCodeAuthLocked, "too many failed attempts", nil), http.StatusTooManyRequests, "auth_account_locked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&fakeAuthService{err: tt.err}, DefaultCookieConfig(), testValidator(), discardLogger())
			rec := serve(t, h, types.Principal{}, http.MethodPost, "/auth/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.Nil(t, findCookie(rec, core.SessionCookieName))
		})
	}
}

func TestHandleRegister(t *testing.T) {
	svc := newSignedIn()
	h := NewAuthHandler(svc, DefaultCookieConfig(), testValidator(), discardLogger())

	rec := serve(t, h, types.Principal{}, http.MethodPost, "/auth/register", RegisterRequest{
		Email: "ada@example.com", Password: "correct horse", Name: "Ada",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, findCookie(rec, core.SessionCookieName))

	rec = serve(t, h, types.Principal{}, http.MethodPost, "/auth/register", RegisterRequest{
		Email: "ada@example.com", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogout(t *testing.T) {
	svc := &fakeAuthService{logoutErr: errors.New("db down")}
	h := NewAuthHandler(svc, DefaultCookieConfig(), testValidator(), discardLogger())

	rec := serve(t, h, accountCaller, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	c := findCookie(rec, core.SessionCookieName)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
	assert.Equal(t, []string{""}, svc.loggedOut)
}

func TestHandleLogout_UsesSessionCookie(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc, DefaultCookieConfig(), testValidator(), discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: core.SessionCookieName, Value: "sess_cookie"})
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)
	assert.Equal(t, []string{"sess_cookie"}, svc.loggedOut)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(types.WithSessionID(req.Context(), "sess_ctx"))
	h.HandleLogout(httptest.NewRecorder(), req)
	assert.Equal(t, []string{"sess_cookie", "sess_ctx"}, svc.loggedOut)
}
