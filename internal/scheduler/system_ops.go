package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docgate/internal/activity"
	"docgate/internal/subscription"
)

const (
	// DefaultResyncStaleness matches the webhook safety net: any record the
	// provider has not confirmed in a day is refetched.
	DefaultResyncStaleness = 24 * time.Hour

	// DefaultResyncBatchLimit bounds provider calls per run.
	DefaultResyncBatchLimit = 50
)

// StaleResyncer refreshes subscriptions the provider has not confirmed
// recently. Implemented by subscription.Synchronizer.
type StaleResyncer interface {
	ResyncStale(ctx context.Context, staleness time.Duration, limit int) (subscription.ResyncReport, error)
}

// SubscriptionSyncer is the scheduled counterpart of the webhook: it
// catches events that were lost or failed to apply.
type SubscriptionSyncer struct {
	resyncer  StaleResyncer
	staleness time.Duration
	limit     int
	logger    *slog.Logger
}

func NewSubscriptionSyncer(resyncer StaleResyncer, staleness time.Duration, limit int, logger *slog.Logger) *SubscriptionSyncer {
	if staleness <= 0 {
		staleness = DefaultResyncStaleness
	}
	if limit <= 0 {
		limit = DefaultResyncBatchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionSyncer{resyncer: resyncer, staleness: staleness, limit: limit, logger: logger}
}

// SyncStale returns the number of records updated. Individual provider
// failures are counted and logged, not returned; they are retried next run.
func (s *SubscriptionSyncer) SyncStale(ctx context.Context) (int, error) {
	report, err := s.resyncer.ResyncStale(ctx, s.staleness, s.limit)
	if err != nil {
		return report.Updated, fmt.Errorf("resyncing subscriptions: %w", err)
	}

	level := slog.LevelInfo
	if report.Failed > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "subscription resync complete",
		"checked", report.Checked,
		"updated", report.Updated,
		"failed", report.Failed,
		"staleness", s.staleness.String(),
	)
	return report.Updated, nil
}

// DayExporter archives one UTC day of activity. Implemented by
// activity.Exporter.
type DayExporter interface {
	ExportDay(ctx context.Context, day time.Time) (activity.ExportResult, error)
}

// ActivityArchiver exports the previous UTC day's activity to the files
// bucket.
type ActivityArchiver struct {
	exporter DayExporter
	logger   *slog.Logger
}

func NewActivityArchiver(exporter DayExporter, logger *slog.Logger) *ActivityArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityArchiver{exporter: exporter, logger: logger}
}

// ExportPreviousDay archives the day before now and returns the row count.
// Re-running for the same day overwrites the archive with the same content.
func (a *ActivityArchiver) ExportPreviousDay(ctx context.Context, now time.Time) (int, error) {
	day := now.UTC().AddDate(0, 0, -1)
	res, err := a.exporter.ExportDay(ctx, day)
	if err != nil {
		return res.Rows, fmt.Errorf("exporting activity for %s: %w", day.Format(time.DateOnly), err)
	}
	a.logger.InfoContext(ctx, "activity exported",
		"day", day.Format(time.DateOnly),
		"key", res.Key,
		"rows", res.Rows,
		"bytes", res.Bytes,
	)
	return res.Rows, nil
}
