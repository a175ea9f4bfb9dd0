package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docgate/internal/types"
)

// EngineOperation is a path on the PDF engine.
type EngineOperation string

const (
	EngineRedact          EngineOperation = "/redact"
	EngineDetectPII       EngineOperation = "/detect-pii"
	EngineMerge           EngineOperation = "/merge"
	EnginePDFToWord       EngineOperation = "/convert/pdf-to-word"
	EnginePDFToPowerPoint EngineOperation = "/convert/pdf-to-powerpoint"
	EngineCompress        EngineOperation = "/compress"
	EngineSplitPattern    EngineOperation = "/split/pattern"
	EngineSplitRange      EngineOperation = "/split/range"
	EngineSplitExtract    EngineOperation = "/split/extract"
	EngineSplitSize       EngineOperation = "/split/size"
)

// EngineClient forwards feature requests to the PDF processing service. The
// engine reads inputs from and writes outputs to the shared bucket, so only
// JSON crosses this boundary.
type EngineClient struct {
	base    *BaseClient
	baseURL string
}

func NewEngineClient(baseURL string, timeout time.Duration, opts ...BaseClientOption) *EngineClient {
	opts = append([]BaseClientOption{WithUpstreamCode(types.ErrCodeUpstreamEngine)}, opts...)
	// Processing is not idempotent: a 500 can arrive after the engine wrote
	// its output. Only transport failures and 429/503, which mean the
	// request was not taken, are retried, once.
	base := NewBaseClient(
		&http.Client{Timeout: timeout},
		"pdf-engine",
		RetryPolicy{
			MaxRetries:  1,
			MinWait:     250 * time.Millisecond,
			MaxWait:     2 * time.Second,
			RetryStatus: engineRetryStatus,
		},
		"docgate/1.0",
		opts...,
	)
	return &EngineClient{base: base, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func engineRetryStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// Process posts body to op and returns the engine's JSON result verbatim.
// Engine 4xx responses surface as validation or not-found errors carrying
// the engine's detail message.
func (c *EngineClient) Process(ctx context.Context, op EngineOperation, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode engine request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+string(op), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build engine request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEngine, "failed to read engine response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, engineError(resp.StatusCode, raw)
	}
	if !json.Valid(raw) {
		return nil, types.NewAppError(types.ErrCodeUpstreamEngine, "engine returned a non-JSON body", nil)
	}
	return raw, nil
}

// Ping calls the engine health endpoint.
func (c *EngineClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health returned %d", resp.StatusCode)
	}
	return nil
}

func engineError(status int, body []byte) error {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	_ = json.Unmarshal(body, &e)
	detail := strings.Trim(string(e.Detail), `"`)
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch status {
	case http.StatusNotFound:
		return types.NewAppError(types.ErrCodeNotFoundFile, detail, nil)
	case http.StatusRequestEntityTooLarge:
		return types.NewAppError(types.ErrCodeFileTooLarge, detail, nil)
	}
	if status < 500 {
		return types.NewAppError(types.ErrCodeValidationFailed, detail, nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamEngine, fmt.Sprintf("engine returned %d: %s", status, detail), nil)
}
