package kube

import (
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/yairfalse/kera/providers"
)

// classify wraps an API server error with its retry classification.
func classify(err error) error {
	switch {
	case apierrors.IsTooManyRequests(err):
		return &providers.BackendError{Kind: providers.ErrThrottled, Err: err}
	case apierrors.IsUnauthorized(err),
		apierrors.IsForbidden(err),
		apierrors.IsMethodNotSupported(err),
		apierrors.IsNotFound(err):
		return &providers.BackendError{Kind: providers.ErrNonRetryable, Err: err}
	default:
		// Server timeouts, unavailability, connection failures.
		return &providers.BackendError{Kind: providers.ErrTransient, Err: err}
	}
}
