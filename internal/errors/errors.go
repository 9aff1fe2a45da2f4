package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors (401xx)
	ErrInvalidToken ErrorCode = "40101"
	ErrMissingToken ErrorCode = "40102"

	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrUserExists       ErrorCode = "40003"
	ErrBadCredentials   ErrorCode = "40004"

	// Resource errors (404xx)
	ErrUserNotFound    ErrorCode = "40401"
	ErrContentNotFound ErrorCode = "40402"

	// Limit errors (429xx)
	ErrDailyLimitReached ErrorCode = "42901"
	ErrRateLimited       ErrorCode = "42902"

	// Server errors (5xxxx)
	ErrInternalServer      ErrorCode = "50001"
	ErrGenerationFailed    ErrorCode = "50201"
	ErrUpstreamUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"msg"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse is the body of every error reply. Clients read msg for display
// and code to tell quota exhaustion apart from other failures.
type ErrorResponse struct {
	Message   string    `json:"msg"`
	Code      ErrorCode `json:"code"`
	Details   any       `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewErrorResponse builds the response body for an API error
func NewErrorResponse(err *APIError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Message:   err.Message,
		Code:      err.Code,
		Details:   err.Details,
		RequestID: requestID,
	}
}

// Common errors
var (
	ErrMissingTokenError = &APIError{
		Code:       ErrMissingToken,
		Message:    "No token, authorization denied",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidTokenError = &APIError{
		Code:       ErrInvalidToken,
		Message:    "Token is not valid",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrUserExistsError = &APIError{
		Code:       ErrUserExists,
		Message:    "User already exists",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBadCredentialsError = &APIError{
		Code:       ErrBadCredentials,
		Message:    "Invalid credentials",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUserNotFoundError = &APIError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrContentNotFoundError = &APIError{
		Code:       ErrContentNotFound,
		Message:    "Content not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrDailyLimitReachedError = &APIError{
		Code:       ErrDailyLimitReached,
		Message:    "Daily usage limit reached",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Too many requests, please try again later",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrGenerationFailedError = &APIError{
		Code:       ErrGenerationFailed,
		Message:    "Error generating text",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstreamUnavailableError = &APIError{
		Code:       ErrUpstreamUnavailable,
		Message:    "Text generation is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// GetHTTPStatusFromCode maps an error code to its HTTP status.
// Unknown or malformed codes map to 500.
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	switch code[:3] {
	case "400":
		return http.StatusBadRequest
	case "401":
		return http.StatusUnauthorized
	case "404":
		return http.StatusNotFound
	case "429":
		return http.StatusTooManyRequests
	case "502":
		return http.StatusInternalServerError
	case "503":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
