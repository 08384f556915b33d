// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	err := WrapError(ErrProviderRejected, errors.New("user identifier is invalid"))
	want := "[PROVIDER_REJECTED] provider rejected notification: user identifier is invalid"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrTransportFailure, ErrTransportFailure) {
		t.Error("same error should match")
	}

	wrapped := fmt.Errorf("dispatch: %w", WrapError(ErrFormat, errors.New("bad url")))
	if !errors.Is(wrapped, ErrFormat) {
		t.Error("wrapped error should match by code")
	}
	if errors.Is(wrapped, ErrProviderRejected) {
		t.Error("different codes should not match")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrTransportFailure, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrTransportFailure.Code {
		t.Error("code not preserved")
	}
}

func TestIsSkip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not configured", WrapError(ErrNotConfigured, nil), true},
		{"policy rejected", ErrPolicyRejected, true},
		{"provider rejected", ErrProviderRejected, false},
		{"plain error", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkip(tt.err); got != tt.want {
				t.Errorf("IsSkip() = %v, want %v", got, tt.want)
			}
		})
	}
}
