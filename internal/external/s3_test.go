package external

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestS3Store_ObjectSize(t *testing.T) {
	client := new(mockS3)
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Bucket) == "files" && aws.ToString(in.Key) == "uploads/f1"
	})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(2048)}, nil)

	size, err := NewS3Store(client, "files").ObjectSize(context.Background(), UploadKey("f1"))
	require.NoError(t, err)
	assert.EqualValues(t, 2048, size)
}

func TestS3Store_ObjectSize_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"not found", &s3types.NotFound{}, types.ErrCodeNotFoundFile},
		{"no such key", &s3types.NoSuchKey{}, types.ErrCodeNotFoundFile},
		{"outage", errors.New("dial tcp: timeout"), types.ErrCodeUpstreamStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockS3)
			client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := NewS3Store(client, "files").ObjectSize(context.Background(), "uploads/x")
			assert.Equal(t, tt.want, types.CodeOf(err))
		})
	}
}

func TestS3Store_Put(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		b, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Key) == "archive/activity/2026/03/01.ndjson.zst" &&
			aws.ToString(in.ContentType) == "application/zstd" &&
			string(b) == "payload"
	})).Return(&s3.PutObjectOutput{}, nil)

	err := NewS3Store(client, "files").Put(context.Background(), "archive/activity/2026/03/01.ndjson.zst",
		strings.NewReader("payload"), "application/zstd")
	require.NoError(t, err)
	client.AssertExpectations(t)
}
