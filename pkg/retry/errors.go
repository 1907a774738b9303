package retry

import (
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when every attempt failed with a retryable reason.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// FatalError is returned when an operation fails with a reason outside the
// retryable set. No further attempts are made after a fatal error.
type FatalError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("fatal error: %v", e.Err)
	}
	return fmt.Sprintf("fatal error (reason %s): %v", e.Reason, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Reasoner is implemented by errors that carry an upstream error reason,
// such as "quotaExceeded" or "backendError".
type Reasoner interface {
	Reason() string
}

// Retryable reasons reported by the reporting API.
const (
	ReasonUserRateLimitExceeded = "userRateLimitExceeded"
	ReasonRateLimitExceeded     = "rateLimitExceeded"
	ReasonQuotaExceeded         = "quotaExceeded"
	ReasonInternalServerError   = "internalServerError"
	ReasonBackendError          = "backendError"
	ReasonServiceUnavailable    = "Service Unavailable"
)

var retryableReasons = map[string]bool{
	ReasonUserRateLimitExceeded: true,
	ReasonRateLimitExceeded:     true,
	ReasonQuotaExceeded:         true,
	ReasonInternalServerError:   true,
	ReasonBackendError:          true,
	ReasonServiceUnavailable:    true,
}

// Classifier extracts the reason of an error and reports whether it is retryable.
type Classifier func(err error) (reason string, retryable bool)

// ClassifyReason is the default Classifier. Only errors implementing Reasoner
// with a reason from the retryable set are retried; everything else,
// including transport errors without a reason, is fatal.
func ClassifyReason(err error) (string, bool) {
	var r Reasoner
	if !errors.As(err, &r) {
		return "", false
	}
	reason := r.Reason()
	return reason, retryableReasons[reason]
}
