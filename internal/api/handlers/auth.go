package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docgate/internal/auth"
	"docgate/internal/core"
	"docgate/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=100"`
}

// AuthResponse is returned by login and register. The session ID travels
// only in the HttpOnly cookie.
type AuthResponse struct {
	CSRFToken string      `json:"csrf_token"`
	User      *types.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// AuthService is the account lifecycle used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, email, password, name string, client auth.ClientInfo) (*types.User, *types.Session, error)
	Login(ctx context.Context, email, password string, client auth.ClientInfo) (*types.User, *types.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler maps login, logout and registration to the auth service and
// manages the session cookie.
type AuthHandler struct {
	service   AuthService
	cookies   CookieConfig
	validator *core.Validator
	logger    *slog.Logger
}

func NewAuthHandler(svc AuthService, cookies CookieConfig, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{service: svc, cookies: cookies, validator: v, logger: l}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/logout", h.HandleLogout)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, session, err := h.service.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.startSession(w, r, http.StatusOK, user, session)
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, session, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, clientInfo(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.startSession(w, r, http.StatusCreated, user, session)
}

// HandleLogout always succeeds and clears the cookie. A failed delete is
// logged; the session then lapses at its expiry.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := types.GetSessionID(r.Context())
	if !ok {
		if c, err := r.Cookie(core.SessionCookieName); err == nil {
			sessionID = c.Value
		}
	}
	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		types.LoggerFromContext(r.Context()).WarnContext(r.Context(), "failed to invalidate session during logout", "error", err)
	}
	h.cookies.clear(w, core.SessionCookieName)
	writeData(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, user *types.User, session *types.Session) {
	h.cookies.set(w, core.SessionCookieName, session.ID, time.Until(session.ExpiresAt))
	writeData(w, r, status, AuthResponse{
		CSRFToken: session.CSRFToken,
		User:      user,
		ExpiresAt: session.ExpiresAt,
	})
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{IP: core.ClientIP(r), UserAgent: r.UserAgent()}
}
