package aws

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/yairfalse/kera/providers"
)

// Throttling codes vary per service; this covers the ones the wired
// services actually emit.
var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"SlowDown":                               true,
}

var denyCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"UnauthorizedException":       true,
	"AuthFailure":                 true,
	"InvalidClientTokenId":        true,
	"UnrecognizedClientException": true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"OptInRequired":               true,
	"UnsupportedOperation":        true,
	"InvalidAction":               true,
}

// classify wraps an AWS SDK error with its retry classification.
func classify(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		switch {
		case throttleCodes[code]:
			return &providers.BackendError{Kind: providers.ErrThrottled, Err: err}
		case denyCodes[code]:
			return &providers.BackendError{Kind: providers.ErrNonRetryable, Err: err}
		case ae.ErrorFault() == smithy.FaultServer:
			return &providers.BackendError{Kind: providers.ErrTransient, Err: err}
		}
	}
	// Timeouts, connection resets, unknown codes: worth retrying.
	return &providers.BackendError{Kind: providers.ErrTransient, Err: err}
}
