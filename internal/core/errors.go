// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Skips: expected control paths, reported as skipped results
	ErrNotConfigured  = &Error{Code: "NOT_CONFIGURED", Message: "project is not configured"}
	ErrPolicyRejected = &Error{Code: "POLICY_REJECTED", Message: "notification rejected by policy"}

	// Dispatch failures
	ErrFormat           = &Error{Code: "FORMAT_ERROR", Message: "occurrence could not be formatted"}
	ErrTransportFailure = &Error{Code: "TRANSPORT_FAILURE", Message: "provider unreachable"}
	ErrProviderRejected = &Error{Code: "PROVIDER_REJECTED", Message: "provider rejected notification"}

	// Lookup errors
	ErrProjectNotFound  = &Error{Code: "PROJECT_NOT_FOUND", Message: "project not found"}
	ErrDeliveryNotFound = &Error{Code: "DELIVERY_NOT_FOUND", Message: "delivery not found"}

	// Request errors
	ErrBadRequest   = &Error{Code: "BAD_REQUEST", Message: "malformed request"}
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Archive errors
	ErrArchiveFailed = &Error{Code: "ARCHIVE_FAILED", Message: "archive write failed"}
)

// IsSkip reports whether err is one of the expected non-delivery paths.
func IsSkip(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Is(ErrNotConfigured) || e.Is(ErrPolicyRejected)
}
