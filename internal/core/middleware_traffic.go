package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"docgate/internal/types"
)

const (
	rateLimitWindow         = time.Minute
	defaultAccountRateLimit = 120
	defaultGuestRateLimit   = 30
)

// RateLimit applies a fixed-window request limit per caller: the user for
// accounts, the guest session (or IP before one exists) for guests. Store
// errors fail open. X-RateLimit-* headers are set on every checked request.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		key, limit := s.rateLimitKey(r)
		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, rateLimitWindow)
		if err != nil {
			types.LoggerFromContext(r.Context()).Error("rate limit store error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			types.LoggerFromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "rate limit exceeded, retry after the reset time", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitKey(r *http.Request) (string, int) {
	accountLimit, guestLimit := defaultAccountRateLimit, defaultGuestRateLimit
	if s.Config != nil {
		if s.Config.Security.RateLimitPerMinute > 0 {
			accountLimit = s.Config.Security.RateLimitPerMinute
		}
		if s.Config.Security.GuestRateLimitPerMinute > 0 {
			guestLimit = s.Config.Security.GuestRateLimitPerMinute
		}
	}

	p, ok := types.GetPrincipal(r.Context())
	if !ok {
		return "ip:" + ClientIP(r), guestLimit
	}
	if p.Kind == types.PrincipalAccount {
		return p.RateLimitKey(), accountLimit
	}
	return p.RateLimitKey(), guestLimit
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
