package scheduler

import (
	"fmt"
	"log/slog"
	"net/http"

	"docgate/internal/activity"
	"docgate/internal/billing"
	"docgate/internal/config"
	"docgate/internal/db"
	"docgate/internal/external"
	"docgate/internal/subscription"
	"docgate/internal/types"
)

// NewDispatcherFromConfig wires every task against conn and archives. It is
// shared by the archiver Lambda and the job-runner CLI so both run the
// same code paths.
func NewDispatcherFromConfig(cfg *config.Config, conn db.DBTX, archives activity.ArchiveWriter, workerID string, logger *slog.Logger) (*Dispatcher, error) {
	clock := types.RealClock{}

	catalog, err := billing.NewCatalog(billing.DefaultLimits)
	if err != nil {
		return nil, fmt.Errorf("building plan catalog: %w", err)
	}

	stripeClient := external.NewStripeClient(&http.Client{Timeout: cfg.Billing.SyncTimeout}, db.NewUserRepository(conn), external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		PriceIDs:  cfg.Billing.PriceIDs(),
		Logger:    logger,
	})
	synchronizer := subscription.NewSynchronizer(subscription.Config{
		Store:        db.NewSubscriptionRepository(conn, logger),
		Provider:     stripeClient,
		Catalog:      catalog,
		Clock:        clock,
		Logger:       logger,
		SyncTimeout:  cfg.Billing.SyncTimeout,
		PastDueGrace: cfg.Entitlement.PastDueGrace,
	})

	locks := db.NewJobLockRepository(conn)
	cleanup := NewCleanupService(
		db.NewGuestSessionRepository(conn),
		db.NewSessionRepository(conn),
		locks,
		db.NewSecurityRepository(conn),
		CleanupConfig{GuestRetention: cfg.Guest.AuditRetention},
		logger,
	)
	exporter := activity.NewExporter(db.NewActivityRepository(conn), archives, logger)

	return &Dispatcher{
		Services: Services{
			Cleanup:       cleanup,
			Subscriptions: NewSubscriptionSyncer(synchronizer, cfg.Billing.SyncStaleness, DefaultResyncBatchLimit, logger),
			Activity:      NewActivityArchiver(exporter, logger),
		},
		JobLock:    locks,
		JobHistory: db.NewJobHistoryRepository(conn),
		WorkerID:   workerID,
		Clock:      clock,
		Logger:     logger,
	}, nil
}
