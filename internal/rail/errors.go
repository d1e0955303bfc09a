package rail

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a gateway failure. Retryable kinds are transient
// conditions where resubmitting the same request may succeed; everything else
// is fatal for the payment that triggered it.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"

	KindInsufficientFunds    ErrorKind = "insufficient_funds"
	KindBadDestination       ErrorKind = "bad_destination"
	KindNoDestinationAccount ErrorKind = "no_destination_account"
	KindSequenceConflict     ErrorKind = "sequence_conflict"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindBadRequest           ErrorKind = "bad_request"
)

// Error is a classified gateway failure. Status is the HTTP status code when
// the gateway answered, zero for transport failures.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rail %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("rail %s: %s", e.Kind, e.Message)
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable rail error anywhere in its
// chain. Context cancellation and unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var railErr *Error
	return errors.As(err, &railErr) && railErr.Retryable()
}

// classifyKind maps a gateway error code to a kind, falling back to the HTTP
// status when the code is absent or unknown.
func classifyKind(code string, status int) ErrorKind {
	switch code {
	case "timeout":
		return KindTimeout
	case "rate_limited":
		return KindRateLimited
	case "unavailable":
		return KindUnavailable
	case "insufficient_funds":
		return KindInsufficientFunds
	case "bad_destination":
		return KindBadDestination
	case "no_destination_account":
		return KindNoDestinationAccount
	case "sequence_conflict":
		return KindSequenceConflict
	case "unauthorized":
		return KindUnauthorized
	}

	switch {
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNoDestinationAccount
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}
