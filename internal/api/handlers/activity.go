package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docgate/internal/billing"
	"docgate/internal/core"
	"docgate/internal/types"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ActivityLister pages through a user's activity, newest first.
type ActivityLister interface {
	ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*types.Activity, types.PageInfo, error)
}

// UsageReporter builds the current-period usage snapshot.
type UsageReporter interface {
	CurrentUsage(ctx context.Context, userID string) (*billing.UsageSnapshot, error)
}

// DashboardHandler serves the signed-in user's activity log and usage.
type DashboardHandler struct {
	activity ActivityLister
	usage    UsageReporter
}

func NewDashboardHandler(activity ActivityLister, usage UsageReporter) *DashboardHandler {
	return &DashboardHandler{activity: activity, usage: usage}
}

func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireAccount)
		r.Get("/activity", h.ListActivity)
		r.Get("/usage", h.GetUsage)
	})
}

// ListActivity handles GET /activity?limit=&cursor=.
func (h *DashboardHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "limit must be between 1 and 100", nil))
			return
		}
		limit = n
	}

	items, page, err := h.activity.ListByUser(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if items == nil {
		items = []*types.Activity{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: items,
		Meta: &types.ResponseMeta{Pagination: &page},
	})
}

func (h *DashboardHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	snap, err := h.usage.CurrentUsage(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, snap)
}
