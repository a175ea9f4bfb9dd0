// Package main is the entrypoint for the maintenance Lambda.
//
// EventBridge rules send a MaintenancePayload naming one task. The function
// wires the scheduler services once per cold start and hands every payload
// to scheduler.Dispatcher, which takes the hourly job lock, runs the task
// and records job history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"docgate/internal/config"
	"docgate/internal/db"
	"docgate/internal/external"
	"docgate/internal/scheduler"
)

func main() {
	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		config.NewLogger("").Error("archiver failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	logger.Info("archiver initializing (cold start)", "version", cfg.Build.Version)

	if err := run(cfg, logger); err != nil {
		logger.Error("archiver failed to start", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	s3Client, err := external.NewS3Client(ctx, cfg.AWS.Region, cfg.AWS.S3Endpoint)
	if err != nil {
		return fmt.Errorf("creating s3 client: %w", err)
	}

	d, err := scheduler.NewDispatcherFromConfig(cfg, pool, external.NewS3Store(s3Client, cfg.AWS.FilesBucket), uuid.NewString(), logger)
	if err != nil {
		return err
	}
	logger.Info("archiver initialized", "worker_id", d.WorkerID)

	lambda.Start(d.Handle)
	return nil
}
