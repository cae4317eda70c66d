package types

import "errors"

// ErrorCode identifies a failure class. The executor's retry and key-rotation
// decisions hang off these codes, so the set is closed.
type ErrorCode string

const (
	ErrNetwork        ErrorCode = "NETWORK_ERROR"
	ErrAPICall        ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit   ErrorCode = "API_RATE_LIMIT"
	ErrAPIAuth        ErrorCode = "API_AUTH_ERROR"
	ErrContentBlocked ErrorCode = "CONTENT_BLOCKED"
	ErrEmptyResponse  ErrorCode = "EMPTY_RESPONSE"
	ErrKeysExhausted  ErrorCode = "KEYS_EXHAUSTED"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrStorage        ErrorCode = "STORAGE_ERROR"
	ErrConfig         ErrorCode = "CONFIG_ERROR"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// AppError is the application error type carrying a classification code.
type AppError struct {
	Code    ErrorCode
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError with the given code, message and cause.
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// NewAppErrorWithDetails creates an AppError carrying extra detail text.
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Details: details, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Non-AppError values map to ErrInternal; nil maps to "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
