package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON    ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidPlan    ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidFeature ErrorCode = "validation_invalid_feature"
	ErrCodeValidationInvalidIP      ErrorCode = "validation_invalid_ip_address"
	ErrCodeValidationFailed         ErrorCode = "validation_failed"
	ErrCodeValidationSignature      ErrorCode = "validation_invalid_signature"

	// Auth (401)
	ErrCodeAuthTokenMissing         ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid         ErrorCode = "auth_token_invalid"
	ErrCodeAuthSessionExpired       ErrorCode = "auth_session_expired"
	ErrCodeAuthInvalidCreds         ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthLocked               ErrorCode = "auth_account_locked"
	ErrCodeAuthAccountNotActive     ErrorCode = "auth_account_not_active"
	ErrCodeAuthPrincipalUnresolved  ErrorCode = "auth_principal_unresolved"
	ErrCodeAuthGuestSessionExpired  ErrorCode = "auth_guest_session_expired"
	ErrCodeAuthGuestSessionNotFound ErrorCode = "auth_guest_session_not_found"

	// Policy denials (403, FILE_TOO_LARGE is 400). The codes are the reason
	// strings clients map to upgrade prompts.
	ErrCodeNoSubscription     ErrorCode = ErrorCode(ReasonNoSubscription)
	ErrCodeTrialExpired       ErrorCode = ErrorCode(ReasonTrialExpired)
	ErrCodeQuotaExceeded      ErrorCode = ErrorCode(ReasonQuotaExceeded)
	ErrCodeGuestLimitExceeded ErrorCode = ErrorCode(ReasonGuestLimitExceeded)
	ErrCodeFileTooLarge       ErrorCode = ErrorCode(ReasonFileTooLarge)

	// Permission (403)
	ErrCodePermissionDenied ErrorCode = "permission_denied"

	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundFile         ErrorCode = "not_found_file"
	ErrCodeNotFoundSession      ErrorCode = "not_found_session"

	// Conflict (409)
	ErrCodeConflictEmail        ErrorCode = "conflict_email_exists"
	ErrCodeConflictSubscription ErrorCode = "conflict_subscription_exists"

	// Internal/Upstream (500/502/503)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamEngine      ErrorCode = "upstream_engine_unavailable"
	ErrCodeUpstreamStorage     ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case c == ErrCodeFileTooLarge:
		return http.StatusBadRequest
	case c.IsPolicyDenial():
		return http.StatusForbidden
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case c == ErrCodeAuthLocked:
		return http.StatusTooManyRequests
	case c == ErrCodeAuthAccountNotActive:
		return http.StatusForbidden
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case c == ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsPolicyDenial reports whether the code is an entitlement denial rather
// than a failure. Denials are expected outcomes and are not logged as errors.
func (c ErrorCode) IsPolicyDenial() bool {
	switch c {
	case ErrCodeNoSubscription, ErrCodeTrialExpired, ErrCodeQuotaExceeded,
		ErrCodeGuestLimitExceeded, ErrCodeFileTooLarge:
		return true
	}
	return false
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError so the API layer can format them
// consistently and map them to HTTP statuses.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or the
// empty string when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
