package reporting

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// APIError is a classified error returned by the reporting API.
type APIError struct {
	StatusCode int
	ErrReason  string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("reporting API error (status %d, reason %s): %s",
		e.StatusCode, e.ErrReason, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Reason returns the upstream error reason used for retry classification.
func (e *APIError) Reason() string {
	return e.ErrReason
}

// classifyAPIError converts a googleapi error into an *APIError. The reason is
// taken from the first error item, falling back to the HTTP status text.
// Errors that did not come from the API are returned unchanged.
func classifyAPIError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	reason := ""
	for _, item := range gerr.Errors {
		if item.Reason != "" {
			reason = item.Reason
			break
		}
	}
	if reason == "" {
		reason = http.StatusText(gerr.Code)
	}

	return &APIError{
		StatusCode: gerr.Code,
		ErrReason:  reason,
		Message:    gerr.Message,
		Err:        err,
	}
}
