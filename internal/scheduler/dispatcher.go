package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docgate/internal/db"
	"docgate/internal/types"
)

// lockTTL covers the longest expected run with margin. A crashed worker
// releases the hour's lock once it lapses.
const lockTTL = 15 * time.Minute

// Cleanup is the sweep surface used by the dispatcher.
type Cleanup interface {
	SweepGuestSessions(ctx context.Context, now time.Time) (int, error)
	SweepSessions(ctx context.Context, now time.Time) (int, error)
	PurgeSecurityEvents(ctx context.Context, now time.Time) (int, error)
}

type SubscriptionSync interface {
	SyncStale(ctx context.Context) (int, error)
}

type ActivityExport interface {
	ExportPreviousDay(ctx context.Context, now time.Time) (int, error)
}

// Services holds the task implementations. They are built once per cold
// start and reused across invocations.
type Services struct {
	Cleanup       Cleanup
	Subscriptions SubscriptionSync
	Activity      ActivityExport
}

// JobLocker grants at most one worker per lock id.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error)
}

// JobHistorian records task runs.
type JobHistorian interface {
	Start(ctx context.Context, run db.JobRun) (int64, error)
	Finish(ctx context.Context, id int64, out db.JobOutcome) error
}

// Dispatcher runs one maintenance task per payload under an hourly job lock.
type Dispatcher struct {
	Services   Services
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Clock      types.Clock
	Logger     *slog.Logger
}

// LockID is the job lock for task in the hour containing now.
func LockID(task TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.UTC().Truncate(time.Hour).Format("2006-01-02T15"))
}

// Handle processes one EventBridge payload:
//  1. Resolve the reference time.
//  2. Acquire the "task:YYYY-MM-DDTHH" lock; a held lock is a skip, not a failure.
//  3. Record the start in job history.
//  4. Run the task.
//  5. Record the outcome and item count.
func (d *Dispatcher) Handle(ctx context.Context, payload MaintenancePayload) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	// The lease and history timestamps follow the wall clock; the task and
	// lock id follow the reference time so backfills lock their own hour.
	started := clock.Now().UTC()
	now := started
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if payload.Task == "" {
		return "", errors.New("empty task type in maintenance payload")
	}
	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "maintenance task invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", d.WorkerID,
	)

	lockID := LockID(payload.Task, now)
	acquired, err := d.JobLock.Acquire(ctx, lockID, d.WorkerID, started, lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", lockID, "error", err)
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	// History is best effort; a zero id skips Finish.
	jobID, err := d.JobHistory.Start(ctx, db.JobRun{
		Task:          taskStr,
		LockID:        lockID,
		WorkerID:      d.WorkerID,
		ReferenceTime: now,
		StartedAt:     started,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "task", taskStr, "error", err)
		jobID = 0
	}

	items, execErr := d.dispatch(ctx, payload.Task, now)

	status := db.JobStatusSuccess
	if execErr != nil {
		status = db.JobStatusFailed
	}
	if jobID != 0 {
		out := db.JobOutcome{Status: status, Items: items, Err: execErr, FinishedAt: clock.Now().UTC()}
		if err := d.JobHistory.Finish(ctx, jobID, out); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", err,
			)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "maintenance task failed",
			"task", taskStr,
			"items_before_error", items,
			"error", execErr,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", taskStr, items)
	logger.InfoContext(ctx, result, "task", taskStr, "items", items)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskSweepGuestSessions:
		return d.Services.Cleanup.SweepGuestSessions(ctx, now)
	case TaskSweepSessions:
		return d.Services.Cleanup.SweepSessions(ctx, now)
	case TaskCleanupSecurityEvents:
		return d.Services.Cleanup.PurgeSecurityEvents(ctx, now)
	case TaskSyncSubscriptions:
		return d.Services.Subscriptions.SyncStale(ctx)
	case TaskExportActivity:
		return d.Services.Activity.ExportPreviousDay(ctx, now)
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}
