package core

import (
	"log/slog"
	"net/http"

	"docgate/internal/types"
)

const (
	// SessionCookieName carries the dashboard login session.
	SessionCookieName = "docgate_session"
	// GuestCookieName carries the anonymous guest session id.
	GuestCookieName = "guest_session"
	// GuestHeader is an alternative to the guest cookie for API clients.
	GuestHeader = "X-Guest-Session"
)

// principalExemptPaths never need a principal.
var principalExemptPaths = map[string]bool{
	"/health":             true,
	"/v1/webhooks/stripe": true,
}

// PrincipalMiddleware resolves who is calling.
//
//  1. A valid session cookie yields an account principal; the session's CSRF
//     token and id are stored for CSRFMiddleware and logout.
//  2. Otherwise the caller is a guest identified by X-Guest-Session or the
//     guest cookie, plus the client IP. The guest session itself is
//     resolved later, by the handler that needs it.
//
// An expired or unknown session cookie downgrades the caller to guest. A
// store failure is a 500: treating an account as a guest would apply the
// wrong policy.
func (s *Server) PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principalExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := ClientIP(r)
		logger := types.LoggerFromContext(ctx)

		if s.Sessions != nil {
			if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
				session, err := s.Sessions.ValidateSession(ctx, c.Value)
				switch {
				case err == nil:
					ctx = types.WithPrincipal(ctx, types.AccountPrincipal(session.UserID, ip))
					ctx = types.WithSessionCSRFToken(ctx, session.CSRFToken)
					ctx = types.WithSessionID(ctx, session.ID)
					ctx = types.WithLogger(ctx, logger.With("user_id", session.UserID))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				case isStaleSession(err):
					logger.DebugContext(ctx, "session cookie rejected, continuing as guest",
						slog.String("error_code", string(types.CodeOf(err))),
					)
				default:
					logger.ErrorContext(ctx, "session lookup failed", slog.String("error", err.Error()))
					Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to resolve session", err))
					return
				}
			}
		}

		guestID := r.Header.Get(GuestHeader)
		if guestID == "" {
			if c, err := r.Cookie(GuestCookieName); err == nil {
				guestID = c.Value
			}
		}
		ctx = types.WithPrincipal(ctx, types.GuestPrincipal(guestID, ip))
		if guestID != "" {
			ctx = types.WithLogger(ctx, logger.With("guest_session_id", guestID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isStaleSession(err error) bool {
	switch types.CodeOf(err) {
	case types.ErrCodeAuthSessionExpired, types.ErrCodeAuthTokenInvalid, types.ErrCodeNotFoundSession:
		return true
	}
	return false
}

// RequireAccount rejects callers that are not signed in.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := types.GetPrincipal(r.Context())
		if !ok || p.Kind != types.PrincipalAccount {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "sign in required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
