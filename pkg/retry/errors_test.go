package retry

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantReason    string
		wantRetryable bool
	}{
		{"user rate limit", &reasonError{ReasonUserRateLimitExceeded}, ReasonUserRateLimitExceeded, true},
		{"rate limit", &reasonError{ReasonRateLimitExceeded}, ReasonRateLimitExceeded, true},
		{"quota", &reasonError{ReasonQuotaExceeded}, ReasonQuotaExceeded, true},
		{"internal server error", &reasonError{ReasonInternalServerError}, ReasonInternalServerError, true},
		{"backend error", &reasonError{ReasonBackendError}, ReasonBackendError, true},
		{"service unavailable", &reasonError{ReasonServiceUnavailable}, ReasonServiceUnavailable, true},
		{"wrapped retryable", fmt.Errorf("fetch page: %w", &reasonError{ReasonBackendError}), ReasonBackendError, true},
		{"bad request", &reasonError{"badRequest"}, "badRequest", false},
		{"no reason", errors.New("boom"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, retryable := ClassifyReason(tt.err)
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
			if retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", retryable, tt.wantRetryable)
			}
		})
	}
}

func TestFatalError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FatalError
		expected string
	}{
		{
			name:     "with reason",
			err:      &FatalError{Reason: "badRequest", Err: errors.New("invalid metric")},
			expected: "fatal error (reason badRequest): invalid metric",
		},
		{
			name:     "without reason",
			err:      &FatalError{Err: errors.New("dial tcp: timeout")},
			expected: "fatal error: dial tcp: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFatalError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := fmt.Errorf("page 2: %w", &FatalError{Reason: "x", Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if !IsFatal(err) {
		t.Error("IsFatal should see through wrapping")
	}
}
