package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Insert(ctx context.Context, a *types.Activity) error {
	return m.Called(ctx, a).Error(0)
}

func activityBody(t *testing.T, id string) string {
	t.Helper()
	b, err := json.Marshal(types.Activity{
		ID:        id,
		UserID:    "user_1",
		Type:      types.FeatureRedaction,
		Action:    "redact",
		Status:    types.ActivitySuccess,
		CreatedAt: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return string(b)
}

func newHandler(store ActivityWriter) *Handler {
	return &Handler{store: store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandle_PersistsBatch(t *testing.T) {
	store := &mockWriter{}
	store.On("Insert", mock.Anything, mock.MatchedBy(func(a *types.Activity) bool {
		return a.ID == "act_1" && a.UserID == "user_1"
	})).Return(nil).Once()
	store.On("Insert", mock.Anything, mock.MatchedBy(func(a *types.Activity) bool {
		return a.ID == "act_2"
	})).Return(nil).Once()

	resp, err := newHandler(store).Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: activityBody(t, "act_1")},
		{MessageId: "m2", Body: activityBody(t, "act_2")},
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	store.AssertExpectations(t)
}

func TestHandle_ReportsFailedInsertsOnly(t *testing.T) {
	store := &mockWriter{}
	store.On("Insert", mock.Anything, mock.MatchedBy(func(a *types.Activity) bool { return a.ID == "act_1" })).
		Return(errors.New("connection reset"))
	store.On("Insert", mock.Anything, mock.MatchedBy(func(a *types.Activity) bool { return a.ID == "act_2" })).
		Return(nil)

	resp, err := newHandler(store).Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: activityBody(t, "act_1")},
		{MessageId: "m2", Body: activityBody(t, "act_2")},
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_AcknowledgesMalformedMessages(t *testing.T) {
	store := &mockWriter{}

	resp, err := newHandler(store).Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: "not json"},
		{MessageId: "m2", Body: `{"action":"redact"}`},
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestQueueLag(t *testing.T) {
	sent := time.Now().Add(-3 * time.Second)
	lag := queueLag(events.SQSMessage{Attributes: map[string]string{
		"SentTimestamp": strconv.FormatInt(sent.UnixMilli(), 10),
	}})
	assert.GreaterOrEqual(t, lag, 3*time.Second-time.Millisecond)

	assert.Zero(t, queueLag(events.SQSMessage{}))
	assert.Zero(t, queueLag(events.SQSMessage{Attributes: map[string]string{"SentTimestamp": "soon"}}))
}
