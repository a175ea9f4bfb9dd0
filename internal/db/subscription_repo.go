package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"docgate/internal/types"
)

// SubscriptionRepository stores one SubscriptionRecord per user.
//
// Save uses optimistic locking on last_event_at so provider events delivered
// out of order never overwrite newer state. Events sharing a timestamp are
// told apart by id: every applied event id is claimed in billing_events in
// the same statement, and a claimed id is never applied twice.
type SubscriptionRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewSubscriptionRepository(db DBTX, logger *slog.Logger) *SubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `id, user_id, plan, status, trial_start, trial_end,
	current_period_start, current_period_end, cancel_at_period_end,
	external_subscription_id, external_customer_id, last_event_at, last_event_id,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.SubscriptionRecord, error) {
	var (
		s                               types.SubscriptionRecord
		externalID, custID, lastEventID *string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Plan,
		&s.Status,
		&s.TrialStart,
		&s.TrialEnd,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&externalID,
		&custID,
		&s.LastEventAt,
		&lastEventID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ExternalSubscriptionID = deref(externalID)
	s.ExternalCustomerID = deref(custID)
	s.LastEventID = deref(lastEventID)
	return &s, nil
}

// optionalSubscription maps "no row" to nil, nil: a user without a record is
// on the implicit free tier.
func optionalSubscription(s *types.SubscriptionRecord, err error) (*types.SubscriptionRecord, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return s, nil
}

func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error) {
	return optionalSubscription(scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)))
}

func (r *SubscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*types.SubscriptionRecord, error) {
	return optionalSubscription(scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1`, externalID)))
}

// GetByCustomerID returns the most recently updated record for a provider
// customer. Refund events only carry the customer.
func (r *SubscriptionRepository) GetByCustomerID(ctx context.Context, customerID string) (*types.SubscriptionRecord, error) {
	return optionalSubscription(scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE external_customer_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`, customerID)))
}

// Create inserts s and claims s.LastEventID, if any.
func (r *SubscriptionRepository) Create(ctx context.Context, s *types.SubscriptionRecord) error {
	_, err := r.db.Exec(ctx,
		`WITH claim AS (
		     INSERT INTO billing_events (event_id, subscription_id, occurred_at)
		     SELECT $13::text, $1, $12 WHERE $13::text IS NOT NULL
		     ON CONFLICT (event_id) DO NOTHING
		 )
		 INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID,
		s.UserID,
		s.Plan,
		s.Status,
		s.TrialStart,
		s.TrialEnd,
		s.CurrentPeriodStart,
		s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd,
		nilIfEmpty(s.ExternalSubscriptionID),
		nilIfEmpty(s.ExternalCustomerID),
		s.LastEventAt,
		nilIfEmpty(s.LastEventID),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSubscription, "subscription already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription", err)
	}
	return nil
}

// Save overwrites the record when s.LastEventAt is not older than the stored
// value and s.LastEventID has not been claimed before. A record without an
// event id (trial activation, provider snapshot) only needs the time check.
// applied is false for stale or replayed events.
func (r *SubscriptionRepository) Save(ctx context.Context, s *types.SubscriptionRecord) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`WITH claim AS (
		     INSERT INTO billing_events (event_id, subscription_id, occurred_at)
		     SELECT $13::text, $1, $11 WHERE $13::text IS NOT NULL
		     ON CONFLICT (event_id) DO NOTHING
		     RETURNING event_id
		 )
		 UPDATE subscriptions
		 SET plan = $2,
		     status = $3,
		     trial_start = $4,
		     trial_end = $5,
		     current_period_start = $6,
		     current_period_end = $7,
		     cancel_at_period_end = $8,
		     external_subscription_id = $9,
		     external_customer_id = $10,
		     last_event_at = $11,
		     updated_at = $12,
		     last_event_id = $13
		 WHERE id = $1
		   AND (last_event_at IS NULL OR last_event_at <= $11)
		   AND ($13::text IS NULL OR EXISTS (SELECT 1 FROM claim))`,
		s.ID,
		s.Plan,
		s.Status,
		s.TrialStart,
		s.TrialEnd,
		s.CurrentPeriodStart,
		s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd,
		nilIfEmpty(s.ExternalSubscriptionID),
		nilIfEmpty(s.ExternalCustomerID),
		s.LastEventAt,
		s.UpdatedAt,
		nilIfEmpty(s.LastEventID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, types.NewAppError(types.ErrCodeConflictSubscription, "external subscription already linked to another user", err)
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "stale subscription write ignored (optimistic lock)",
			"user_id", s.UserID,
			"last_event_at", s.LastEventAt,
			"event_id", s.LastEventID,
		)
		return false, nil
	}
	return true, nil
}

// ListStale returns provider-backed records not written since updatedBefore,
// oldest first.
func (r *SubscriptionRepository) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*types.SubscriptionRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE external_subscription_id IS NOT NULL AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		updatedBefore, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale subscriptions", err)
	}
	defer rows.Close()

	var out []*types.SubscriptionRecord
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscriptions", err)
	}
	return out, nil
}
