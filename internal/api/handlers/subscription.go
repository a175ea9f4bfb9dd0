package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docgate/internal/core"
	"docgate/internal/subscription"
	"docgate/internal/types"
)

// SubscriptionService is the subscription surface of the Synchronizer.
type SubscriptionService interface {
	Status(ctx context.Context, userID string) (subscription.StatusView, error)
	ActivateTrial(ctx context.Context, userID string, plan types.PlanTier) (*types.SubscriptionRecord, bool, error)
	Sync(ctx context.Context, userID string) (subscription.SyncResult, error)
}

// CheckoutService starts a hosted checkout with the payments provider.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, userID string, plan types.PlanTier, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error)
}

type ActivateTrialRequest struct {
	Plan types.PlanTier `json:"plan" validate:"omitempty,paid_plan"`
}

type CheckoutRequest struct {
	Plan types.PlanTier `json:"plan" validate:"required,paid_plan"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// TrialResponse reports whether this call started the trial.
type TrialResponse struct {
	Created      bool                    `json:"created"`
	Subscription subscription.StatusView `json:"subscription"`
}

// SubscriptionHandler serves the account's subscription status and the
// actions that change it.
type SubscriptionHandler struct {
	subs         SubscriptionService
	checkout     CheckoutService
	validator    *core.Validator
	dashboardURL string
	logger       *slog.Logger
}

func NewSubscriptionHandler(subs SubscriptionService, checkout CheckoutService, dashboardURL string, v *core.Validator, l *slog.Logger) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SubscriptionHandler{
		subs:         subs,
		checkout:     checkout,
		validator:    v,
		dashboardURL: dashboardURL,
		logger:       l,
	}
}

func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.RequireAccount)
		r.Get("/subscription-status", h.GetStatus)
		r.Post("/subscription/activate-trial", h.ActivateTrial)
		r.Post("/subscription/sync", h.Sync)
		r.Post("/subscription/checkout", h.CreateCheckout)
	})
}

func (h *SubscriptionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.subs.Status(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, view)
}

// ActivateTrial starts a trial, defaulting to solo. Repeat calls return the
// existing subscription with 200 instead of 201.
func (h *SubscriptionHandler) ActivateTrial(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req ActivateTrialRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Plan == "" {
		req.Plan = types.PlanSolo
	}

	_, created, err := h.subs.ActivateTrial(r.Context(), userID, req.Plan)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.subs.Status(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, r, status, TrialResponse{Created: created, Subscription: view})
}

// Sync forces a refresh from the provider. When the provider is unreachable
// the stored state is returned with stale=true.
func (h *SubscriptionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.subs.Sync(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.subs.Status(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	view.Stale = res.Stale
	writeData(w, r, http.StatusOK, view)
}

// CreateCheckout returns a hosted checkout URL. Redirect targets are built
// from the configured dashboard URL, never from the request.
func (h *SubscriptionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := accountUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	url, sessionID, err := h.checkout.CreateCheckoutSession(r.Context(), userID, req.Plan, types.RedirectURLs{
		Success: h.dashboardURL + "/billing?success=true",
		Cancel:  h.dashboardURL + "/billing?canceled=true",
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"user_id", userID,
		"plan", string(req.Plan),
	)
	writeData(w, r, http.StatusOK, CheckoutResponse{CheckoutURL: url, SessionID: sessionID})
}
