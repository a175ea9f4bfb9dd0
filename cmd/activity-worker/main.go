// Package main is the entrypoint for the activity worker Lambda.
//
// The API publishes one SQS message per processed feature request. This
// worker persists them in batches and reports per-message failures so SQS
// redelivers only the messages that did not land.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/kelseyhightower/envconfig"

	"docgate/internal/activity"
	"docgate/internal/config"
	"docgate/internal/db"
	"docgate/internal/types"
)

// ActivityWriter persists decoded activity rows. Inserts are idempotent on
// the activity id, so redelivered messages are harmless.
type ActivityWriter interface {
	Insert(ctx context.Context, a *types.Activity) error
}

// Handler consumes activity queue batches.
type Handler struct {
	store  ActivityWriter
	logger *slog.Logger
}

// Handle persists each record independently. Malformed bodies are logged
// and acknowledged since redelivery cannot fix them.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to persist activity",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	a, err := activity.Decode(record.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "dropping malformed activity message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	if err := h.store.Insert(ctx, a); err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "activity persisted",
		"activity_id", a.ID,
		"type", string(a.Type),
		"lag", queueLag(record),
	)
	return nil
}

// queueLag is the time since SQS accepted the message, or zero when the
// attribute is missing.
func queueLag(record events.SQSMessage) time.Duration {
	sent, err := parseMillisTimestamp(record.Attributes["SentTimestamp"])
	if err != nil {
		return 0
	}
	return time.Since(sent)
}

func parseMillisTimestamp(ms string) (time.Time, error) {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(n), nil
}

func main() {
	// The worker skips the full gateway config, so LOG_LEVEL is read
	// directly.
	logger := config.NewLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("activity worker initializing (cold start)")

	// Only the database settings are needed, so secrets are resolved and
	// the database block is read directly instead of loading the full
	// gateway configuration.
	if err := config.ResolveSecrets(config.DefaultProvider()); err != nil {
		logger.Error("failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}
	var dbCfg config.DatabaseConfig
	if err := envconfig.Process("", &dbCfg); err != nil {
		logger.Error("failed to read database configuration", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(context.Background(), dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	handler := &Handler{store: db.NewActivityRepository(pool), logger: logger}
	logger.Info("activity worker initialized")

	lambda.Start(handler.Handle)
}
