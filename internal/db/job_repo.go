package db

import (
	"context"
	"time"

	"docgate/internal/types"
)

// Job run statuses stored in job_history.status.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobLockRepository leases job_locks rows so each maintenance window runs on
// one worker.
type JobLockRepository struct {
	db DBTX
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire takes lockID for ttl starting at now. A row whose lease lapsed
// before now is taken over; a live lease held by anyone returns false.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id, locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < EXCLUDED.locked_at`,
		lockID, workerID, now, now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpired drops leases that ended before cutoff.
func (r *JobLockRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM job_locks WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune job locks", err)
	}
	return tag.RowsAffected(), nil
}

// JobRun identifies one maintenance execution.
type JobRun struct {
	Task          string
	LockID        string
	WorkerID      string
	ReferenceTime time.Time
	StartedAt     time.Time
}

// JobOutcome is what a run produced. Err is stored as text.
type JobOutcome struct {
	Status     string
	Items      int
	Err        error
	FinishedAt time.Time
}

// JobHistoryRepository is the audit trail of maintenance runs.
type JobHistoryRepository struct {
	db DBTX
}

func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start records run as running and returns the row id.
func (r *JobHistoryRepository) Start(ctx context.Context, run JobRun) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, lock_id, worker_id, reference_time, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		run.Task, run.LockID, run.WorkerID, run.ReferenceTime.UTC(), run.StartedAt.UTC(), JobStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to record job start", err)
	}
	return id, nil
}

// Finish closes the row opened by Start.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, out JobOutcome) error {
	var errText *string
	if out.Err != nil {
		msg := out.Err.Error()
		errText = &msg
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = $2, status = $3, items_count = $4, error = $5
		 WHERE id = $1 AND status = 'running'`,
		id, out.FinishedAt.UTC(), out.Status, out.Items, errText,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record job outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "no running job history entry", nil)
	}
	return nil
}
