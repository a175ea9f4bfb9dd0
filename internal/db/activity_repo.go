package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"docgate/internal/types"
)

// ActivityRepository stores the dashboard audit trail.
type ActivityRepository struct {
	db DBTX
}

func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, user_id, guest_session_id, type, action, file_name, status,
	duration_ms, error_message, metadata, created_at`

func scanActivity(row pgx.Row) (*types.Activity, error) {
	var (
		a                             types.Activity
		userID, guestID, file, errMsg *string
	)
	err := row.Scan(&a.ID, &userID, &guestID, &a.Type, &a.Action, &file, &a.Status,
		&a.DurationMs, &errMsg, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.UserID = deref(userID)
	a.GuestSessionID = deref(guestID)
	a.FileName = deref(file)
	a.ErrorMessage = deref(errMsg)
	return &a, nil
}

func (r *ActivityRepository) Insert(ctx context.Context, a *types.Activity) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID,
		nilIfEmpty(a.UserID),
		nilIfEmpty(a.GuestSessionID),
		a.Type,
		a.Action,
		nilIfEmpty(a.FileName),
		a.Status,
		a.DurationMs,
		nilIfEmpty(a.ErrorMessage),
		a.Metadata,
		a.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record activity", err)
	}
	return nil
}

// ListByUser returns up to limit activities for userID, newest first. cursor
// is the id of the last item of the previous page.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*types.Activity, types.PageInfo, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM activities
		 WHERE user_id = $1
		   AND ($2::text = '' OR (created_at, id) < (SELECT created_at, id FROM activities WHERE id = $2))
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		userID, cursor, limit+1,
	)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list activity", err)
	}
	items, err := collectActivities(rows)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	var page types.PageInfo
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		page.NextCursor = items[len(items)-1].ID
	}
	return items, page, nil
}

// ListCreatedBetween pages through activities created in [start, end) in
// ascending order, resuming after afterID.
func (r *ActivityRepository) ListCreatedBetween(ctx context.Context, start, end time.Time, afterID string, limit int) ([]*types.Activity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM activities
		 WHERE created_at >= $1 AND created_at < $2
		   AND ($3::text = '' OR (created_at, id) > (SELECT created_at, id FROM activities WHERE id = $3))
		 ORDER BY created_at ASC, id ASC
		 LIMIT $4`,
		start, end, afterID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list activity for export", err)
	}
	return collectActivities(rows)
}

func collectActivities(rows pgx.Rows) ([]*types.Activity, error) {
	defer rows.Close()
	var out []*types.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan activity", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate activity", err)
	}
	return out, nil
}
