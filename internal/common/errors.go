package common

import "errors"

// Machine-readable error codes carried in every error response body.
const (
	CodeInvalidPayload = "invalid_payload"
	CodeUnauthorized   = "unauthorized"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeUpstream       = "upstream_error"
	CodeInternal       = "internal_error"
)

// AppError pairs an error with the code and HTTP status the handler layer
// should render. Services return it when they already know how the failure
// maps to the API surface.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError builds an AppError wrapping err.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError reports whether err carries AppError metadata anywhere in its
// chain.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
