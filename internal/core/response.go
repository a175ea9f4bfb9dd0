package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"docgate/internal/types"
)

// maxRequestBodySize caps JSON request bodies. Document payloads never pass
// through the gateway; only S3 keys and options do.
const maxRequestBodySize = 1 << 20

// APIResponse wraps data that travels with metadata such as pagination.
type APIResponse struct {
	Data any                 `json:"data,omitempty"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the body of every non-2xx response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine code clients branch on. For policy
// denials Code is the denial reason and Details holds feature, current
// and limit.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON encodes data with status. An unencodable value is a programming
// error and is answered with a 500 envelope instead.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		types.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "response encoding failed", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to encode response",
			RequestID: types.GetRequestID(r.Context()),
		}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as an APIErrorResponse. Only AppError codes, messages
// and details reach the client; wrapped causes stay in the logs.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := types.LoggerFromContext(ctx)
	detail := ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(ctx),
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	}

	switch {
	case appErr == nil:
		logger.ErrorContext(ctx, "unexpected error", "error", err.Error())
	case appErr.Code.IsPolicyDenial():
		logger.InfoContext(ctx, "request denied by policy", "reason", detail.Code, "details", detail.Details)
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "request failed", "error_code", detail.Code, "error", err.Error())
	}

	JSON(w, r, status, APIErrorResponse{Error: detail})
}

// DecodeJSON reads exactly one JSON object into dst. Unknown fields, an
// empty body, trailing values and bodies over 1 MB are all
// validation_invalid_json.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted;
// an empty body leaves dst untouched.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return invalidJSON("request body must not be empty", nil)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return classifyDecodeError(err)
	}
	if dec.More() {
		return invalidJSON("request body must contain a single JSON object", nil)
	}
	return nil
}

func invalidJSON(msg string, cause error) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidJSON, msg, cause)
}

func classifyDecodeError(err error) *types.AppError {
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		return invalidJSON("request body must not exceed 1MB", err)
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return invalidJSON("malformed JSON in request body", err)
	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON, "invalid value for field", err, map[string]any{
			"field":    typeErr.Field,
			"expected": typeErr.Type.String(),
		})
	case errors.Is(err, io.EOF):
		return invalidJSON("request body must not be empty", err)
	}
	// encoding/json has no typed error for DisallowUnknownFields.
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return invalidJSON("unknown field in request body: "+field, err)
	}
	return invalidJSON("invalid JSON in request body", err)
}
