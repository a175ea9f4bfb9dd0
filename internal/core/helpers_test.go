package core

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"docgate/internal/config"
	"docgate/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(&config.Config{}, discardLogger())
	require.NoError(t, err)
	return s
}

// principalEcho writes the resolved principal so tests can inspect it.
func principalEcho(w http.ResponseWriter, r *http.Request) {
	p, ok := types.GetPrincipal(r.Context())
	if !ok {
		JSON(w, r, http.StatusOK, map[string]any{"resolved": false})
		return
	}
	csrf, _ := types.GetSessionCSRFToken(r.Context())
	sid, _ := types.GetSessionID(r.Context())
	JSON(w, r, http.StatusOK, map[string]any{
		"resolved":   true,
		"kind":       p.Kind,
		"user_id":    p.UserID,
		"guest_id":   p.GuestSessionID,
		"ip":         p.IPAddress,
		"csrf":       csrf,
		"session_id": sid,
	})
}
