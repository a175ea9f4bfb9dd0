package activity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type memStore struct {
	rows []*types.Activity
	err  error
}

func (m *memStore) Insert(_ context.Context, a *types.Activity) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, a)
	return nil
}

type fakeSQS struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestDBRecorder_FillsDefaults(t *testing.T) {
	store := &memStore{}
	rec := NewDBRecorder(store, types.FixedClock{T: testNow})

	err := rec.Record(context.Background(), &types.Activity{UserID: "user_1", Type: types.FeatureMerge, Action: "merge"})
	require.NoError(t, err)
	require.Len(t, store.rows, 1)

	got := store.rows[0]
	assert.True(t, strings.HasPrefix(got.ID, "act_"))
	assert.Equal(t, testNow, got.CreatedAt)
	assert.Equal(t, types.ActivitySuccess, got.Status)
}

func TestDBRecorder_PropagatesStoreError(t *testing.T) {
	rec := NewDBRecorder(&memStore{err: errors.New("db down")}, types.FixedClock{T: testNow})
	assert.Error(t, rec.Record(context.Background(), &types.Activity{Type: types.FeatureMerge}))
}

func TestSQSPublisher_RoundTripsThroughDecode(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.test/activity", types.FixedClock{T: testNow}, slog.Default())

	in := &types.Activity{
		GuestSessionID: "guest_1",
		Type:           types.FeatureRedaction,
		Action:         "redact",
		FileName:       "contract.pdf",
		Status:         types.ActivityFailed,
		ErrorMessage:   "engine unavailable",
	}
	require.NoError(t, pub.Record(context.Background(), in))
	require.Len(t, client.calls, 1)

	call := client.calls[0]
	assert.Equal(t, "https://sqs.test/activity", aws.ToString(call.QueueUrl))
	assert.Equal(t, "redaction", aws.ToString(call.MessageAttributes["type"].StringValue))

	out, err := Decode(aws.ToString(call.MessageBody))
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, "guest_1", out.GuestSessionID)
	assert.Equal(t, types.ActivityFailed, out.Status)
	assert.True(t, testNow.Equal(out.CreatedAt))
}

func TestSQSPublisher_SendError(t *testing.T) {
	pub := NewSQSPublisher(&fakeSQS{err: errors.New("throttled")}, "q", types.FixedClock{T: testNow}, slog.Default())
	err := pub.Record(context.Background(), &types.Activity{Type: types.FeatureMerge})
	assert.ErrorContains(t, err, "throttled")
}

func TestNewRecorder_SelectsBackend(t *testing.T) {
	clock := types.FixedClock{T: testNow}
	assert.IsType(t, &DBRecorder{}, NewRecorder(&memStore{}, &fakeSQS{}, "", clock, slog.Default()))
	assert.IsType(t, &DBRecorder{}, NewRecorder(&memStore{}, nil, "https://sqs.test/q", clock, slog.Default()))
	assert.IsType(t, &SQSPublisher{}, NewRecorder(&memStore{}, &fakeSQS{}, "https://sqs.test/q", clock, slog.Default()))
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode("{not json")
	assert.Error(t, err)

	_, err = Decode(`{"type":"merge"}`)
	assert.Error(t, err)
}
