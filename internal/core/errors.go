package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is wrapped by lookups of unknown sessions, datasets or tables.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-swap on session state loses
	// to a concurrent stage invocation.
	ErrConflict = errors.New("session state changed concurrently")

	// ErrTimeout marks an external call that exceeded its deadline.
	ErrTimeout = errors.New("external call timeout")

	// ErrDuplicateDOI is returned by Store.CommitLoad when another dataset
	// already owns the DOI.
	ErrDuplicateDOI = errors.New("dataset with this doi already exists")

	// ErrEmptyCSV is returned by ParseCSV when the input has no header row.
	ErrEmptyCSV = errors.New("csv is empty")
)

// InvalidTransitionError reports a stage invoked out of order.
type InvalidTransitionError struct {
	Stage    Stage
	Event    Event
	Expected []State
	Actual   State
}

func (e *InvalidTransitionError) Error() string {
	want := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		want[i] = string(s)
	}
	if e.Stage != "" {
		return fmt.Sprintf("invalid state transition: cannot %s from %q (expected %s)",
			e.Stage, e.Actual, strings.Join(want, " or "))
	}
	return fmt.Sprintf("invalid state transition: event %s not allowed from %q", e.Event, e.Actual)
}

// ExternalServiceError wraps a failed or timed-out call to a collaborator.
type ExternalServiceError struct {
	Service string
	Op      string
	Timeout bool
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("external service %s %s: timeout: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("external service %s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match timed-out calls.
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// PersistenceError wraps a failed store or object storage write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StageError is returned by stage operations after the session was marked
// failed. It carries the recorded stage so callers can direct a retry.
type StageError struct {
	SessionID string
	Stage     Stage
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for session %s: %v", e.Stage, e.SessionID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var t *InvalidTransitionError
	return errors.As(err, &t)
}

// IsExternal reports whether err came from an external collaborator.
func IsExternal(err error) bool {
	var e *ExternalServiceError
	return errors.As(err, &e)
}

// IsPersistence reports whether err came from a store write.
func IsPersistence(err error) bool {
	var e *PersistenceError
	return errors.As(err, &e)
}
