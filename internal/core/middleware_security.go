package core

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"docgate/internal/types"
)

// IPSecurityMiddleware refuses callers whose IP has crossed the failed
// login threshold. Health checks and provider webhooks are never blocked.
func (s *Server) IPSecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.SecurityService == nil || principalExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if !s.SecurityService.IsIPBlocked(r.Context(), ip) {
			next.ServeHTTP(w, r)
			return
		}
		types.LoggerFromContext(r.Context()).WarnContext(r.Context(), "blocked request from IP",
			slog.String("ip", ip),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		Error(w, r, types.NewAppError(types.ErrCodePermissionDenied, "access denied", nil))
	})
}

// CSRFMiddleware requires X-CSRF-Token to match the session token on unsafe
// requests made with a session cookie. Guests carry no ambient credential
// worth forging, so they are exempt.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		p, ok := types.GetPrincipal(r.Context())
		if !ok || p.Kind != types.PrincipalAccount {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get("X-CSRF-Token")
		sessionToken, hasToken := types.GetSessionCSRFToken(r.Context())
		if !hasToken || headerToken == "" ||
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(sessionToken)) != 1 {
			types.LoggerFromContext(r.Context()).Warn("CSRF validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("header_present", headerToken != ""),
			)
			Error(w, r, types.NewAppError(types.ErrCodePermissionDenied, "CSRF token is missing or invalid", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For entry when it parses as an IP,
// or RemoteAddr without its port. Guest quotas fall back to this value, so
// junk in the header must not mint a fresh identity.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
