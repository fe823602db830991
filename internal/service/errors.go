package service

import (
	"errors"
	"fmt"
)

// Expected, frequent outcomes. These are part of the normal protocol
// with callers and must stay distinguishable from system faults.
var (
	// ErrNotFound covers both truly absent records and records the
	// actor does not own, so ownership cannot be probed.
	ErrNotFound = errors.New("not found")
	// ErrInstanceBusy means another state-changing operation on the
	// same instance is in flight.
	ErrInstanceBusy = errors.New("instance busy")
	// ErrNameTaken means the requested instance name already exists.
	ErrNameTaken = errors.New("instance name already exists")
	// ErrEmailTaken means a user with that email already exists.
	ErrEmailTaken = errors.New("user already exists with this email")
	// ErrUserHasInstances blocks deleting a user who still owns instances.
	ErrUserHasInstances = errors.New("user still has instances")
)

// QuotaExceededError is returned when admission is denied. It carries
// the ceiling and current usage so callers can produce an actionable
// message.
type QuotaExceededError struct {
	Kind    string // "instances" or "messages"
	Limit   int
	Current int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d of %d used", e.Kind, e.Current, e.Limit)
}

// InvalidTransitionError is returned when an operation is attempted
// from a state the transition table does not allow.
type InvalidTransitionError struct {
	State string
	Op    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %s not allowed from state %s", e.Op, e.State)
}

// StorageError wraps a persistence failure. Always surfaced, never
// swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
