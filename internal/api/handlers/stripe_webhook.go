package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docgate/internal/core"
	"docgate/internal/external"
	"docgate/internal/types"
)

// maxWebhookBodySize caps webhook payloads. Stripe events are well under
// this.
const maxWebhookBodySize = 256 * 1024

// BillingEventApplier stores provider events.
type BillingEventApplier interface {
	Apply(ctx context.Context, ev types.BillingEvent) (*types.SubscriptionRecord, bool, error)
}

// StripeWebhookHandler verifies and applies Stripe events. Once the
// signature verifies it always answers 200; processing failures are logged
// and left to the scheduled resync.
type StripeWebhookHandler struct {
	parser  external.WebhookParser
	applier BillingEventApplier
	logger  *slog.Logger
}

func NewStripeWebhookHandler(parser external.WebhookParser, applier BillingEventApplier, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{parser: parser, applier: applier, logger: logger}
}

func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err))
		return
	}

	ev, err := h.parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.WarnContext(ctx, "webhook rejected", "error", err)
		core.Error(w, r, err)
		return
	}
	if ev == nil {
		writeData(w, r, http.StatusOK, map[string]bool{"received": true})
		return
	}

	rec, applied, err := h.applier.Apply(ctx, *ev)
	switch {
	case err != nil:
		h.logger.ErrorContext(ctx, "webhook event processing failed",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"error", err,
		)
	case !applied:
		h.logger.InfoContext(ctx, "webhook event ignored", "event_id", ev.ID, "kind", string(ev.Kind))
	default:
		h.logger.InfoContext(ctx, "webhook event applied",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"user_id", rec.UserID,
		)
	}
	writeData(w, r, http.StatusOK, map[string]bool{"received": true})
}
