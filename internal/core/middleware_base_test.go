package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverer(t *testing.T) {
	s := newTestServer(t)
	h := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("engine exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_unexpected_error", body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "engine exploded")
}

func TestRecoverer_RepanicsAbort(t *testing.T) {
	s := newTestServer(t)
	h := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestLogger_RedactsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(bufferLogger(&buf), defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/redaction", nil)
	req.Header.Set("Cookie", "docgate_session=secret-session")
	req.Header.Set("X-CSRF-Token", "secret-csrf")
	req.Header.Set("User-Agent", "tests")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(http.StatusForbidden), entry["status"])
	assert.Equal(t, float64(len("denied")), entry["bytes"])

	headers := entry["headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Cookie"])
	assert.Equal(t, "[REDACTED]", headers["X-Csrf-Token"])
	assert.Equal(t, "tests", headers["User-Agent"])
	assert.NotContains(t, buf.String(), "secret-session")
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", ""},
		{"wildcard echoes", []string{"*"}, "https://any.example.com", "https://any.example.com"},
		{"no origin", []string{"*"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCORSMiddleware(tt.allowed)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

type recordedRequest struct {
	method, endpoint, status string
}

type fakeCollector struct {
	calls []recordedRequest
}

func (f *fakeCollector) RecordRequest(method, endpoint, status string, _ time.Duration) {
	f.calls = append(f.calls, recordedRequest{method, endpoint, status})
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	s := newTestServer(t)
	collector := &fakeCollector{}
	s.Metrics = collector

	r := chi.NewRouter()
	r.Use(s.MetricsMiddleware)
	r.Get("/v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/files/f_123", nil))

	require.Len(t, collector.calls, 1)
	assert.Equal(t, recordedRequest{"GET", "/v1/files/{id}", "202"}, collector.calls[0])
}
