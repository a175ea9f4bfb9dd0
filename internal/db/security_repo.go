package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docgate/internal/types"
)

// SecurityRepository stores login and registration attempts in
// security_events.
type SecurityRepository struct {
	db DBTX
}

func NewSecurityRepository(db DBTX) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// LogAttempt appends event. Empty identifiers and reasons are stored as
// NULL; a zero AttemptedAt takes the column default.
func (r *SecurityRepository) LogAttempt(ctx context.Context, event *types.SecurityEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO security_events (event_type, identifier, ip_address, attempted_at, success, failure_reason)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()), $5, $6)`,
		event.EventType,
		nilIfEmpty(event.Identifier),
		event.IPAddress,
		nilIfZeroTime(event.AttemptedAt),
		event.Success,
		nilIfEmpty(event.FailureReason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to log security event", err)
	}
	return nil
}

// FailureFilter selects failed attempts after Since. Empty fields match
// everything.
type FailureFilter struct {
	IP         string
	Identifier string
	EventType  string
	Since      time.Time
}

// CountFailures counts failed attempts matching f.
func (r *SecurityRepository) CountFailures(ctx context.Context, f FailureFilter) (int, error) {
	where := []string{"success = false", "attempted_at > $1"}
	args := []any{f.Since}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("ip_address", f.IP)
	add("identifier", f.Identifier)
	add("event_type", f.EventType)

	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM security_events WHERE "+strings.Join(where, " AND "),
		args...,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count security failures", err)
	}
	return count, nil
}

// DeleteBefore prunes events older than cutoff.
func (r *SecurityRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM security_events WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune security events", err)
	}
	return tag.RowsAffected(), nil
}
