package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docgate/internal/core"
	"docgate/internal/guest"
	"docgate/internal/types"
)

// GuestSessions is the guest tracker as seen by GuestHandler.
type GuestSessions interface {
	Resolve(ctx context.Context, id, ip string, now time.Time) (*types.GuestSession, error)
	Peek(ctx context.Context, id, ip string, now time.Time) (*types.GuestSession, error)
	Limits() guest.Limits
}

// GuestSessionResponse is returned by POST /guest-session/create.
type GuestSessionResponse struct {
	GuestSessionID string            `json:"guestSessionId"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Redaction      types.LimitStatus `json:"redaction"`
	Merge          types.LimitStatus `json:"merge"`
}

// GuestHandler issues guest sessions and reports their remaining allowance.
type GuestHandler struct {
	tracker GuestSessions
	cookies CookieConfig
	clock   types.Clock
	logger  *slog.Logger
}

func NewGuestHandler(tracker GuestSessions, cookies CookieConfig, clock types.Clock, l *slog.Logger) *GuestHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if l == nil {
		l = slog.Default()
	}
	return &GuestHandler{tracker: tracker, cookies: cookies, clock: clock, logger: l}
}

func (h *GuestHandler) RegisterRoutes(r chi.Router) {
	r.Post("/guest-session/create", h.Create)
	r.Get("/guest-session/merge-limit", h.limitHandler(types.FeatureMerge))
	r.Get("/guest-session/redaction-limit", h.limitHandler(types.FeatureRedaction))
}

// Create returns the caller's live guest session, creating one if needed,
// and sets the guest cookie.
func (h *GuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	now := h.clock.Now()
	session, err := h.tracker.Resolve(r.Context(), p.GuestSessionID, p.IPAddress, now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.cookies.set(w, core.GuestCookieName, session.ID, session.ExpiresAt.Sub(now))
	limits := h.tracker.Limits()
	writeData(w, r, http.StatusOK, GuestSessionResponse{
		GuestSessionID: session.ID,
		ExpiresAt:      session.ExpiresAt,
		Redaction:      guest.Project(session, types.FeatureRedaction, limits.MaxRedactions),
		Merge:          guest.Project(session, types.FeatureMerge, limits.MaxMerges),
	})
}

// limitHandler is read-only: a caller without a live session sees the
// allowance a fresh session would start with.
func (h *GuestHandler) limitHandler(f types.Feature) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		max, _ := h.tracker.Limits().MaxFor(f)

		session, err := h.tracker.Peek(r.Context(), p.GuestSessionID, p.IPAddress, h.clock.Now())
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if session == nil {
			session = &types.GuestSession{}
		}
		core.JSON(w, r, http.StatusOK, guest.Project(session, f, max))
	}
}
