package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

func noopSleep(time.Duration) {}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func newTestBase(policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test", policy, "docgate-test/1.0", opts...)
}

func TestDo_SuccessSetsHeaders(t *testing.T) {
	var gotUA, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	ctx := types.WithRequestID(context.Background(), "req-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	resp, err := newTestBase(fastPolicy(0)).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "docgate-test/1.0", gotUA)
	assert.Equal(t, "req-42", gotReqID)
}

func TestDo_RetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"fileId":"f1"}`))
	resp, err := newTestBase(fastPolicy(3)).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []string{`{"fileId":"f1"}`, `{"fileId":"f1"}`, `{"fileId":"f1"}`}, bodies)
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := newTestBase(fastPolicy(3)).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDo_RetryStatusFilter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := fastPolicy(3)
	policy.RetryStatus = func(status int) bool { return status == http.StatusServiceUnavailable }
	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{}`))
	_, err := newTestBase(policy, WithUpstreamCode(types.ErrCodeUpstreamEngine)).Do(req)

	assert.Equal(t, types.ErrCodeUpstreamEngine, types.CodeOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestDo_ExhaustedRetriesUseUpstreamCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := newTestBase(fastPolicy(2), WithUpstreamCode(types.ErrCodeUpstreamEngine)).Do(req)
	assert.Equal(t, types.ErrCodeUpstreamEngine, types.CodeOf(err))
}

func TestDo_RateLimitedAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := newTestBase(fastPolicy(1)).Do(req)
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, types.CodeOf(err))
}

func TestDo_OpenBreakerSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "trip-fast",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	client := newTestBase(fastPolicy(0), WithBreaker(breaker), WithUpstreamCode(types.ErrCodeUpstreamStripe))

	for range 2 {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		_, _ = client.Do(req)
	}
	before := calls.Load()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	assert.Nil(t, resp)
	assert.Equal(t, types.ErrCodeUpstreamStripe, types.CodeOf(err))
	assert.Equal(t, before, calls.Load())
}

func TestDo_StopsRetryingWhenContextEnds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestBase(fastPolicy(5), WithSleepFunc(func(time.Duration) { cancel() }))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err := client.Do(req)

	assert.Equal(t, types.ErrCodeUpstreamUnavailable, types.CodeOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestComputeBackoff(t *testing.T) {
	c := newTestBase(RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second})

	t.Run("retry-after seconds capped", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
		assert.Equal(t, time.Second, c.computeBackoff(0, resp))
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		for attempt := range 6 {
			d := c.computeBackoff(attempt, nil)
			assert.GreaterOrEqual(t, d, 100*time.Millisecond)
			assert.LessOrEqual(t, d, time.Second)
		}
	})
}
