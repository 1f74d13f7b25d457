package providers

import "errors"

// ErrorKind classifies a backend call failure for the retry policy.
type ErrorKind string

const (
	// ErrTransient covers timeouts, connection resets, and 5xx-equivalent
	// responses. Retried with exponential backoff.
	ErrTransient ErrorKind = "transient"

	// ErrThrottled is an explicit rate-limit signal from the backend.
	// Retried like a transient error, but the backoff delay is bumped.
	ErrThrottled ErrorKind = "throttled"

	// ErrNonRetryable covers authorization denials and unsupported resource
	// types. The work unit fails immediately.
	ErrNonRetryable ErrorKind = "non_retryable"
)

// BackendError wraps a raw backend failure with its retry classification.
// Provider fetchers return these so the lister never needs backend-specific
// error knowledge.
type BackendError struct {
	Kind ErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as transient so a sloppy fetcher still gets retries
// rather than an instant unit failure.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ErrTransient
}
