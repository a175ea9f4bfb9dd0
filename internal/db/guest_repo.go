package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"docgate/internal/types"
)

// GuestSessionRepository stores anonymous usage counters. Counter increments
// are a single conditional UPDATE so concurrent requests cannot overshoot
// the allowance.
type GuestSessionRepository struct {
	db DBTX
}

func NewGuestSessionRepository(db DBTX) *GuestSessionRepository {
	return &GuestSessionRepository{db: db}
}

const guestColumns = `id, ip_address, created_at, expires_at, last_activity, redaction_count, merge_count`

// guestCounterColumns maps each guest-counted feature to its column. Only
// these fixed names are ever interpolated into SQL.
var guestCounterColumns = map[types.Feature]string{
	types.FeatureRedaction: "redaction_count",
	types.FeatureMerge:     "merge_count",
}

func scanGuest(row pgx.Row) (*types.GuestSession, error) {
	var g types.GuestSession
	err := row.Scan(&g.ID, &g.IPAddress, &g.CreatedAt, &g.ExpiresAt, &g.LastActivity, &g.RedactionCount, &g.MergeCount)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LatestActiveByIP returns the newest session for ip still valid at now, or
// nil when there is none.
func (r *GuestSessionRepository) LatestActiveByIP(ctx context.Context, ip string, now time.Time) (*types.GuestSession, error) {
	g, err := scanGuest(r.db.QueryRow(ctx,
		`SELECT `+guestColumns+`
		 FROM guest_sessions
		 WHERE ip_address = $1 AND expires_at >= $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		ip, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up guest session", err)
	}
	return g, nil
}

func (r *GuestSessionRepository) Create(ctx context.Context, g *types.GuestSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO guest_sessions (`+guestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.IPAddress, g.CreatedAt, g.ExpiresAt, g.LastActivity, g.RedactionCount, g.MergeCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create guest session", err)
	}
	return nil
}

func (r *GuestSessionRepository) GetByID(ctx context.Context, id string) (*types.GuestSession, error) {
	g, err := scanGuest(r.db.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guest_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthGuestSessionNotFound, "guest session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve guest session", err)
	}
	return g, nil
}

// IncrementIfBelow bumps the counter for feature when the session is still
// valid at now and the counter is below max. ok is false when no row
// qualified.
func (r *GuestSessionRepository) IncrementIfBelow(ctx context.Context, id string, feature types.Feature, max int, now time.Time) (*types.GuestSession, bool, error) {
	col, found := guestCounterColumns[feature]
	if !found {
		return nil, false, types.NewAppError(types.ErrCodeValidationInvalidFeature,
			fmt.Sprintf("feature %q has no guest counter", feature), nil)
	}

	g, err := scanGuest(r.db.QueryRow(ctx,
		`UPDATE guest_sessions
		 SET `+col+` = `+col+` + 1, last_activity = $3
		 WHERE id = $1 AND expires_at >= $3 AND `+col+` < $2
		 RETURNING `+guestColumns,
		id, max, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to increment guest counter", err)
	}
	return g, true, nil
}

// DeleteExpiredBefore removes sessions that expired before cutoff.
func (r *GuestSessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM guest_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sweep guest sessions", err)
	}
	return tag.RowsAffected(), nil
}
