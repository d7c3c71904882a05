package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Input
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Authorization flow
	ErrCodeStateMismatch       ErrorCode = "STATE_MISMATCH"
	ErrCodeProviderDenied      ErrorCode = "PROVIDER_DENIED"
	ErrCodeTokenExchangeFailed ErrorCode = "TOKEN_EXCHANGE_FAILED"
	ErrCodeProfileFetchFailed  ErrorCode = "PROFILE_FETCH_FAILED"

	// Token lifecycle
	ErrCodeReauthRequired ErrorCode = "REAUTH_REQUIRED"
	ErrCodeMissingScope   ErrorCode = "MISSING_SCOPE"

	// Publishing
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodeDuplicateContent  ErrorCode = "DUPLICATE_CONTENT"
	ErrCodeMediaUploadFailed ErrorCode = "MEDIA_UPLOAD_FAILED"
	ErrCodeProviderError     ErrorCode = "PROVIDER_ERROR"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func StateMismatch() *AppError {
	return New(ErrCodeStateMismatch, "Authorization state is invalid, expired, or already used")
}

func ProviderDenied(provider, detail string) *AppError {
	return New(ErrCodeProviderDenied, fmt.Sprintf("%s denied the authorization request: %s", provider, detail))
}

func TokenExchangeFailed(provider string, cause error) *AppError {
	return Wrap(ErrCodeTokenExchangeFailed, fmt.Sprintf("Failed to exchange authorization code with %s", provider), cause)
}

func ProfileFetchFailed(provider string, cause error) *AppError {
	return Wrap(ErrCodeProfileFetchFailed, fmt.Sprintf("Failed to fetch %s profile", provider), cause)
}

func ReauthRequired(provider string) *AppError {
	return New(ErrCodeReauthRequired, fmt.Sprintf("Your %s connection has expired. Please reconnect your account.", provider))
}

func MissingScope(provider, scope string) *AppError {
	return New(ErrCodeMissingScope, fmt.Sprintf("Your %s connection is missing the %s permission required to post content. Please reconnect your account.", provider, scope))
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func PermissionDenied(message string) *AppError {
	return New(ErrCodePermissionDenied, message)
}

func DuplicateContent(provider string) *AppError {
	return New(ErrCodeDuplicateContent, fmt.Sprintf("%s rejected the post as duplicate content. Please modify your content.", provider))
}

func MediaUploadFailed(provider, detail string) *AppError {
	return New(ErrCodeMediaUploadFailed, fmt.Sprintf("%s media upload failed: %s", provider, detail))
}

func ProviderError(provider string, cause error) *AppError {
	return Wrap(ErrCodeProviderError, fmt.Sprintf("%s returned an unexpected response", provider), cause)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
