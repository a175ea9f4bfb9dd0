// Package activity records the dashboard audit trail and archives it to
// object storage.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"docgate/internal/types"
)

// Recorder accepts completed operations for the activity log. Failures are
// reported to the caller, who decides whether they matter; the feature
// handlers only log them.
type Recorder interface {
	Record(ctx context.Context, a *types.Activity) error
}

// Store persists activity rows.
type Store interface {
	Insert(ctx context.Context, a *types.Activity) error
}

// SQSSender abstracts the SQS SendMessage operation.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// prepare fills the fields every stored activity needs. IDs are assigned
// before enqueueing so that redelivered messages insert once.
func prepare(a *types.Activity, clock types.Clock) {
	if a.ID == "" {
		a.ID = "act_" + uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = clock.Now()
	}
	if a.Status == "" {
		a.Status = types.ActivitySuccess
	}
}

// DBRecorder writes activity synchronously.
type DBRecorder struct {
	store Store
	clock types.Clock
}

func NewDBRecorder(store Store, clock types.Clock) *DBRecorder {
	return &DBRecorder{store: store, clock: clock}
}

func (r *DBRecorder) Record(ctx context.Context, a *types.Activity) error {
	prepare(a, r.clock)
	return r.store.Insert(ctx, a)
}

// SQSPublisher enqueues activity for cmd/activity-worker.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

func NewSQSPublisher(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, clock: clock, logger: logger}
}

func (p *SQSPublisher) Record(ctx context.Context, a *types.Activity) error {
	prepare(a, p.clock)

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("activity: failed to marshal activity: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(a.Type)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("activity: failed to send to %s: %w", p.queueURL, err)
	}

	p.logger.DebugContext(ctx, "activity enqueued", "activity_id", a.ID, "type", string(a.Type))
	return nil
}

// NewRecorder picks the SQS publisher when a queue is configured and the
// direct writer otherwise.
func NewRecorder(store Store, client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) Recorder {
	if queueURL != "" && client != nil {
		return NewSQSPublisher(client, queueURL, clock, logger)
	}
	return NewDBRecorder(store, clock)
}

// Decode parses a message produced by SQSPublisher.
func Decode(body string) (*types.Activity, error) {
	var a types.Activity
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("activity: malformed message: %w", err)
	}
	if a.ID == "" || a.Type == "" {
		return nil, fmt.Errorf("activity: message missing id or type")
	}
	return &a, nil
}
