// Package main implements the job-runner CLI for invoking archiver
// maintenance tasks directly, bypassing the Lambda shim.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=sweep_guest_sessions
//	go run ./cmd/tools/job-runner --task=export_activity --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=sync_subscriptions
//	go run ./cmd/tools/job-runner --list
//
// Configuration is read exactly as the archiver reads it, with a local .env
// file loaded first. --dry-run prints the EventBridge payload without
// touching any dependency.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"docgate/internal/config"
	"docgate/internal/db"
	"docgate/internal/external"
	"docgate/internal/scheduler"
)

// validTasks is every TaskType the dispatcher routes.
var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskSweepGuestSessions:    "Delete guest sessions past the audit retention window",
	scheduler.TaskSweepSessions:         "Delete expired dashboard login sessions",
	scheduler.TaskCleanupSecurityEvents: "Purge security events older than 7 days and stale job locks",
	scheduler.TaskSyncSubscriptions:     "Refetch subscriptions Stripe has not confirmed recently",
	scheduler.TaskExportActivity:        "Archive the previous UTC day of activity to S3",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., sweep_guest_sessions)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke archiver maintenance tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stdout)
		return
	}

	payload, err := buildPayload(*taskFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printAvailableTasks(os.Stderr)
		os.Exit(1)
	}

	if *dryRunFlag {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload, logger)
	if err != nil {
		logger.Error("task execution failed",
			"task", string(payload.Task),
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("task execution succeeded",
		"task", string(payload.Task),
		"result", result,
	)
}

// buildPayload validates the flags and assembles the payload EventBridge
// would send.
func buildPayload(task, refTime string) (scheduler.MaintenancePayload, error) {
	if task == "" {
		return scheduler.MaintenancePayload{}, fmt.Errorf("--task is required")
	}
	taskType := scheduler.TaskType(task)
	if _, ok := validTasks[taskType]; !ok {
		return scheduler.MaintenancePayload{}, fmt.Errorf("unknown task type %q", task)
	}

	payload := scheduler.MaintenancePayload{Task: taskType}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.MaintenancePayload{}, fmt.Errorf("invalid --reference-time %q (want RFC3339): %w", refTime, err)
		}
		t = t.UTC()
		payload.ReferenceTime = &t
	}
	return payload, nil
}

// executeTask wires the dispatcher the same way the archiver does and runs
// one payload through it.
func executeTask(ctx context.Context, payload scheduler.MaintenancePayload, logger *slog.Logger) (string, error) {
	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return "", fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	s3Client, err := external.NewS3Client(ctx, cfg.AWS.Region, cfg.AWS.S3Endpoint)
	if err != nil {
		return "", fmt.Errorf("creating s3 client: %w", err)
	}

	workerID := "job-runner-" + uuid.NewString()
	d, err := scheduler.NewDispatcherFromConfig(cfg, pool, external.NewS3Store(s3Client, cfg.AWS.FilesBucket), workerID, logger)
	if err != nil {
		return "", err
	}

	logger.Info("executing task", "task", string(payload.Task), "worker_id", workerID)
	return d.Handle(ctx, payload)
}

func printAvailableTasks(w io.Writer) {
	names := make([]string, 0, len(validTasks))
	for task := range validTasks {
		names = append(names, string(task))
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Available tasks:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-26s %s\n", name, validTasks[scheduler.TaskType(name)])
	}
}

func printPayload(w io.Writer, payload scheduler.MaintenancePayload) error {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
