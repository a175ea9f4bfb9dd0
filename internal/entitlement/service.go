package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docgate/internal/billing"
	"docgate/internal/types"
)

// SubscriptionStore reads the last-synced record; nil, nil means none.
type SubscriptionStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error)
}

// UsageLedger is the append-only usage log.
type UsageLedger interface {
	CountInPeriod(ctx context.Context, userID string, feature types.Feature, start, end time.Time) (int64, error)
	Append(ctx context.Context, rec *types.UsageRecord) error
}

// GuestTracker is the subset of guest.Tracker the service needs.
type GuestTracker interface {
	Resolve(ctx context.Context, id, ip string, now time.Time) (*types.GuestSession, error)
	GetOrCreate(ctx context.Context, ip string, now time.Time) (*types.GuestSession, error)
	Increment(ctx context.Context, id string, feature types.Feature, now time.Time) (*types.GuestSession, error)
}

// DecisionRecorder receives one call per decision for metrics.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, feature types.Feature, reason types.DenialReason)
}

// Admission is a decision plus the guest session it was made against.
type Admission struct {
	Decision types.Decision
	Guest    *types.GuestSession
}

// Service resolves inputs from the stores and evaluates them.
type Service struct {
	evaluator *Evaluator
	subs      SubscriptionStore
	usage     UsageLedger
	guests    GuestTracker
	recorder  DecisionRecorder
	clock     types.Clock
	logger    *slog.Logger
}

// ServiceConfig holds the dependencies for NewService.
type ServiceConfig struct {
	Evaluator     *Evaluator
	Subscriptions SubscriptionStore
	Usage         UsageLedger
	Guests        GuestTracker
	Recorder      DecisionRecorder
	Clock         types.Clock
	Logger        *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		evaluator: cfg.Evaluator,
		subs:      cfg.Subscriptions,
		usage:     cfg.Usage,
		guests:    cfg.Guests,
		recorder:  cfg.Recorder,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Check evaluates without consuming anything. A guest without a live session
// gets one created lazily.
func (s *Service) Check(ctx context.Context, p types.Principal, f types.Feature, fileBytes int64) (Admission, error) {
	now := s.clock.Now()
	in := Input{Principal: p, Feature: f, FileBytes: fileBytes}

	switch p.Kind {
	case types.PrincipalAccount:
		if err := s.loadAccount(ctx, &in, now); err != nil {
			return Admission{}, err
		}
	case types.PrincipalGuest:
		if err := p.Validate(); err != nil {
			return Admission{}, err
		}
		g, err := s.guests.Resolve(ctx, p.GuestSessionID, p.IPAddress, now)
		if err != nil {
			return Admission{}, err
		}
		in.Guest = g
		in.Principal.GuestSessionID = g.ID
	}

	d, err := s.evaluator.Evaluate(in, now)
	if err != nil {
		return Admission{}, err
	}
	s.observe(ctx, p, d)
	return Admission{Decision: d, Guest: in.Guest}, nil
}

// Admit is Check followed, for guest-counted features, by the atomic counter
// increment that actually reserves the use. A concurrent request that wins
// the last slot turns this admission into a GUEST_LIMIT_EXCEEDED denial.
func (s *Service) Admit(ctx context.Context, p types.Principal, f types.Feature, fileBytes int64) (Admission, error) {
	adm, err := s.Check(ctx, p, f, fileBytes)
	if err != nil || !adm.Decision.Allowed || p.Kind != types.PrincipalGuest {
		return adm, err
	}
	policy, err := billing.PolicyFor(f)
	if err != nil || !policy.GuestCounted {
		return adm, err
	}

	now := s.clock.Now()
	updated, err := s.guests.Increment(ctx, adm.Guest.ID, f, now)
	if types.CodeOf(err) == types.ErrCodeAuthGuestSessionExpired {
		// The window rolled over between resolve and increment.
		fresh, ferr := s.guests.GetOrCreate(ctx, p.IPAddress, now)
		if ferr != nil {
			return Admission{}, ferr
		}
		updated, err = s.guests.Increment(ctx, fresh.ID, f, now)
		adm.Guest = fresh
	}
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeGuestLimitExceeded {
			adm.Decision = types.Decision{Reason: types.ReasonGuestLimitExceeded, Feature: f}
			if max, ok := s.evaluator.policy.Guest.MaxFor(f); ok {
				adm.Decision.Current, adm.Decision.Limit = int64(max), int64(max)
			}
			s.observe(ctx, p, adm.Decision)
			return adm, nil
		}
		return Admission{}, err
	}
	adm.Guest = updated
	return adm, nil
}

// RecordUse appends a usage event after the feature succeeded. Guests were
// already counted at admission, so only accounts write here.
func (s *Service) RecordUse(ctx context.Context, p types.Principal, f types.Feature, metadata map[string]any) error {
	if p.Kind != types.PrincipalAccount {
		return nil
	}
	return s.usage.Append(ctx, &types.UsageRecord{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Feature:   f,
		Count:     1,
		Metadata:  metadata,
		CreatedAt: s.clock.Now(),
	})
}

func (s *Service) loadAccount(ctx context.Context, in *Input, now time.Time) error {
	sub, err := s.subs.GetByUserID(ctx, in.Principal.UserID)
	if err != nil {
		return err
	}
	in.Subscription = sub

	policy, err := billing.PolicyFor(in.Feature)
	if err != nil {
		return err
	}
	if !policy.Metered {
		return nil
	}
	start, end := billing.QuotaPeriod(sub, s.evaluator.Access(sub, now), now)
	count, err := s.usage.CountInPeriod(ctx, in.Principal.UserID, in.Feature, start, end)
	if err != nil {
		return err
	}
	in.PeriodUsage = count
	return nil
}

func (s *Service) observe(ctx context.Context, p types.Principal, d types.Decision) {
	if s.recorder != nil {
		s.recorder.RecordDecision(ctx, d.Feature, d.Reason)
	}
	if !d.Allowed {
		s.logger.InfoContext(ctx, "entitlement denied",
			"principal_kind", string(p.Kind),
			"feature", string(d.Feature),
			"reason", string(d.Reason),
		)
	}
}
