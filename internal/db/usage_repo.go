package db

import (
	"context"
	"time"

	"docgate/internal/types"
)

// UsageRepository is the append-only usage ledger.
type UsageRepository struct {
	db DBTX
}

func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Append(ctx context.Context, rec *types.UsageRecord) error {
	count := rec.Count
	if count <= 0 {
		count = 1
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_records (id, user_id, feature, count, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.UserID,
		rec.Feature,
		count,
		rec.Metadata,
		rec.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append usage record", err)
	}
	return nil
}

// CountInPeriod sums usage of feature for userID within [start, end).
func (r *UsageRepository) CountInPeriod(ctx context.Context, userID string, feature types.Feature, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0)
		 FROM usage_records
		 WHERE user_id = $1 AND feature = $2 AND created_at >= $3 AND created_at < $4`,
		userID, feature, start, end,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count usage", err)
	}
	return total, nil
}

// SumByFeature returns per-feature totals for userID within [start, end).
// Features without usage are absent from the map.
func (r *UsageRepository) SumByFeature(ctx context.Context, userID string, start, end time.Time) (map[types.Feature]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT feature, COALESCE(SUM(count), 0)
		 FROM usage_records
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY feature`,
		userID, start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate usage", err)
	}
	defer rows.Close()

	totals := make(map[types.Feature]int64)
	for rows.Next() {
		var (
			feature types.Feature
			total   int64
		)
		if err := rows.Scan(&feature, &total); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan usage totals", err)
		}
		totals[feature] = total
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate usage totals", err)
	}
	return totals, nil
}
