package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures for callers. The client never
// retries; whether a retry is safe is the orchestrator's call.
type ErrorKind string

const (
	// KindUnreachable covers network errors and timeouts. Retryable.
	KindUnreachable ErrorKind = "unreachable"
	// KindRejected is a gateway 4xx business error. Not retryable;
	// carries the gateway's own message and status code.
	KindRejected ErrorKind = "rejected"
	// KindUnexpected is a contract violation by the gateway (5xx or a
	// response shape we cannot parse). Not retryable, logged.
	KindUnexpected ErrorKind = "unexpected"
)

// Error is the typed failure surfaced by every gateway operation.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("gateway %s failed (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, or "" for non-gateway errors.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsUnreachable reports whether err is a transient transport failure.
func IsUnreachable(err error) bool {
	return KindOf(err) == KindUnreachable
}
