// Package subscription is the only writer of SubscriptionRecord rows.
//
// Provider events are applied idempotently: every record remembers the
// timestamp and id of the last event it absorbed, the store claims every
// applied event id, and older or replayed events are ignored. The billing period only moves forward unless the event is a
// cancellation or refund.
package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docgate/internal/billing"
	"docgate/internal/types"
)

// Store persists subscription records.
type Store interface {
	GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*types.SubscriptionRecord, error)
	GetByCustomerID(ctx context.Context, customerID string) (*types.SubscriptionRecord, error)
	// Create fails with conflict_subscription_exists when the user already
	// has a record.
	Create(ctx context.Context, rec *types.SubscriptionRecord) error
	// Save writes rec only if its LastEventAt is not older than the stored
	// one and its LastEventID, when set, was never saved before.
	Save(ctx context.Context, rec *types.SubscriptionRecord) (applied bool, err error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*types.SubscriptionRecord, error)
}

// Provider reads authoritative state from the payments provider.
type Provider interface {
	FetchSubscription(ctx context.Context, externalSubscriptionID string) (*types.BillingEvent, error)
}

// Config holds the Synchronizer dependencies.
type Config struct {
	Store        Store
	Provider     Provider
	Catalog      *billing.Catalog
	Clock        types.Clock
	Logger       *slog.Logger
	SyncTimeout  time.Duration
	PastDueGrace time.Duration
}

// Synchronizer applies provider events and local trial activations.
type Synchronizer struct {
	store        Store
	provider     Provider
	catalog      *billing.Catalog
	clock        types.Clock
	logger       *slog.Logger
	syncTimeout  time.Duration
	pastDueGrace time.Duration
}

func NewSynchronizer(cfg Config) *Synchronizer {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 5 * time.Second
	}
	if cfg.Catalog == nil {
		cfg.Catalog = billing.MustDefaultCatalog()
	}
	return &Synchronizer{
		store:        cfg.Store,
		provider:     cfg.Provider,
		catalog:      cfg.Catalog,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		syncTimeout:  cfg.SyncTimeout,
		pastDueGrace: cfg.PastDueGrace,
	}
}

// Apply absorbs one provider event. It returns the resulting record and
// whether anything was written; replays and older events report
// applied=false with the stored record unchanged. Distinct events sharing a
// timestamp are applied in arrival order.
func (s *Synchronizer) Apply(ctx context.Context, ev types.BillingEvent) (*types.SubscriptionRecord, bool, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}

	current, err := s.locate(ctx, ev)
	if err != nil {
		return nil, false, err
	}

	if current == nil {
		if ev.Kind != types.BillingSubscriptionUpserted || ev.UserID == "" {
			return nil, false, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSubscription,
				"no subscription matches the event", nil,
				map[string]any{"event_id": ev.ID, "kind": string(ev.Kind)})
		}
		rec := merge(types.SubscriptionRecord{
			ID:        uuid.NewString(),
			UserID:    ev.UserID,
			Plan:      types.PlanFree,
			Status:    types.SubscriptionNone,
			CreatedAt: s.clock.Now(),
		}, ev)
		rec.UpdatedAt = s.clock.Now()
		err := s.store.Create(ctx, &rec)
		if err == nil {
			s.logApplied(ctx, ev, &rec)
			return &rec, true, nil
		}
		if types.CodeOf(err) != types.ErrCodeConflictSubscription {
			return nil, false, err
		}
		// Lost a creation race with another delivery; fall through to update.
		if current, err = s.store.GetByUserID(ctx, ev.UserID); err != nil {
			return nil, false, err
		}
		if current == nil {
			return nil, false, types.NewAppError(types.ErrCodeInternalUnexpected, "subscription vanished after conflict", nil)
		}
	}

	if !supersedes(current, ev) {
		s.logger.InfoContext(ctx, "stale subscription event ignored",
			"event_id", ev.ID,
			"user_id", current.UserID,
			"event_at", ev.OccurredAt,
			"last_event_at", *current.LastEventAt,
		)
		return current, false, nil
	}

	next := merge(*current, ev)
	next.UpdatedAt = s.clock.Now()
	applied, err := s.store.Save(ctx, &next)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		// A newer event was stored concurrently, or this event id was
		// already absorbed.
		latest, err := s.store.GetByUserID(ctx, current.UserID)
		return latest, false, err
	}
	s.logApplied(ctx, ev, &next)
	return &next, true, nil
}

// supersedes reports whether ev may be applied over rec. Provider timestamps
// have one-second resolution, so distinct events in the same second are all
// admitted and only the event rec last absorbed counts as a replay there.
// The store's claim on the event id catches replays of earlier ones.
func supersedes(rec *types.SubscriptionRecord, ev types.BillingEvent) bool {
	if rec.LastEventAt == nil {
		return true
	}
	if ev.OccurredAt.Equal(*rec.LastEventAt) {
		return ev.ID == "" || ev.ID != rec.LastEventID
	}
	return ev.OccurredAt.After(*rec.LastEventAt)
}

// ActivateTrial starts a trial of plan for userID. A user who already has a
// trial, or any paid state, gets the existing record back and created=false.
func (s *Synchronizer) ActivateTrial(ctx context.Context, userID string, plan types.PlanTier) (*types.SubscriptionRecord, bool, error) {
	if !plan.Valid() || plan == types.PlanFree {
		return nil, false, types.NewAppError(types.ErrCodeValidationInvalidPlan, "trial requires a paid plan", nil)
	}
	limits, err := s.catalog.Limits(plan)
	if err != nil {
		return nil, false, err
	}
	if limits.TrialDays <= 0 {
		return nil, false, types.NewAppError(types.ErrCodeValidationInvalidPlan, "plan has no trial", nil)
	}

	existing, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && (existing.TrialStart != nil || existing.Status != types.SubscriptionNone) {
		return existing, false, nil
	}

	now := s.clock.Now()
	trialEnd := now.Add(limits.TrialDuration())
	rec := &types.SubscriptionRecord{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Plan:               plan,
		Status:             types.SubscriptionTrialing,
		TrialStart:         &now,
		TrialEnd:           &trialEnd,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &trialEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if existing != nil {
		// A bare "none" row left by checkout: upgrade it in place.
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		rec.ExternalCustomerID = existing.ExternalCustomerID
		rec.LastEventAt = &now
		if _, err := s.store.Save(ctx, rec); err != nil {
			return nil, false, err
		}
	} else if err := s.store.Create(ctx, rec); err != nil {
		if types.CodeOf(err) != types.ErrCodeConflictSubscription {
			return nil, false, err
		}
		// Concurrent activation won; return its record.
		existing, err := s.store.GetByUserID(ctx, userID)
		return existing, false, err
	}

	s.logger.InfoContext(ctx, "trial activated",
		"user_id", userID,
		"plan", string(plan),
		"trial_end", trialEnd,
	)
	return rec, true, nil
}

// SyncResult is the outcome of a forced refresh.
type SyncResult struct {
	Record *types.SubscriptionRecord
	// Stale is true when the provider could not be reached and Record is the
	// last known state.
	Stale   bool
	Applied bool
}

// Sync refreshes userID's record from the provider within the sync timeout.
// Provider failures fall back to the stored record.
func (s *Synchronizer) Sync(ctx context.Context, userID string) (SyncResult, error) {
	rec, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}
	if rec == nil || rec.ExternalSubscriptionID == "" {
		return SyncResult{Record: rec}, nil
	}
	return s.refresh(ctx, rec), nil
}

func (s *Synchronizer) refresh(ctx context.Context, rec *types.SubscriptionRecord) SyncResult {
	fetchCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	ev, err := s.provider.FetchSubscription(fetchCtx, rec.ExternalSubscriptionID)
	if err != nil {
		s.logger.WarnContext(ctx, "subscription sync failed; serving last known state",
			"user_id", rec.UserID,
			"error", err,
		)
		return SyncResult{Record: rec, Stale: true}
	}

	ev.UserID = rec.UserID
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}
	updated, applied, err := s.Apply(ctx, *ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store synced subscription",
			"user_id", rec.UserID,
			"error", err,
		)
		return SyncResult{Record: rec, Stale: true}
	}
	return SyncResult{Record: updated, Applied: applied}
}

// ResyncReport summarizes a ResyncStale run.
type ResyncReport struct {
	Checked int
	Updated int
	Failed  int
}

// ResyncStale refreshes up to limit provider-backed records not written
// within staleness.
func (s *Synchronizer) ResyncStale(ctx context.Context, staleness time.Duration, limit int) (ResyncReport, error) {
	stale, err := s.store.ListStale(ctx, s.clock.Now().Add(-staleness), limit)
	if err != nil {
		return ResyncReport{}, err
	}
	var report ResyncReport
	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		res := s.refresh(ctx, rec)
		switch {
		case res.Stale:
			report.Failed++
		case res.Applied:
			report.Updated++
		}
	}
	return report, nil
}

// Status returns the read-time view of userID's subscription.
func (s *Synchronizer) Status(ctx context.Context, userID string) (StatusView, error) {
	rec, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return StatusView{}, err
	}
	return View(rec, s.clock.Now(), s.pastDueGrace), nil
}

func (s *Synchronizer) locate(ctx context.Context, ev types.BillingEvent) (*types.SubscriptionRecord, error) {
	if ev.ExternalSubscriptionID != "" {
		rec, err := s.store.GetByExternalID(ctx, ev.ExternalSubscriptionID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	if ev.ExternalCustomerID != "" {
		rec, err := s.store.GetByCustomerID(ctx, ev.ExternalCustomerID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	if ev.UserID != "" {
		return s.store.GetByUserID(ctx, ev.UserID)
	}
	return nil, nil
}

func (s *Synchronizer) logApplied(ctx context.Context, ev types.BillingEvent, rec *types.SubscriptionRecord) {
	s.logger.InfoContext(ctx, "subscription event applied",
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"user_id", rec.UserID,
		"plan", string(rec.Plan),
		"status", string(rec.Status),
	)
}
