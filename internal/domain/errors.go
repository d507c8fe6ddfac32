package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrInstanceNotFound = errors.New("service instance not found")
	ErrEventNotFound    = errors.New("scheduled event not found")
	ErrTaskNotFound     = errors.New("task not found")

	ErrEventCompleted = errors.New("scheduled event is already completed")
	ErrTaskCompleted  = errors.New("task is already completed")
)

// TransitionError is returned when an action is not defined from the current
// state, including when a deferred transition was invalidated by state drift.
type TransitionError struct {
	Action  Action
	Current State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("action %q is not valid from state %q", e.Action, e.Current)
}

// UnauthorizedError is returned when the acting role may not perform an
// otherwise legal action. Operation names a non-transition write such as
// cancelling an event; it is empty for transitions.
type UnauthorizedError struct {
	Role      Role
	Action    Action
	State     State
	Operation string
}

func (e *UnauthorizedError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("role %q may not %s", e.Role, e.Operation)
	}
	return fmt.Sprintf("role %q may not perform %q from state %q", e.Role, e.Action, e.State)
}

// ConcurrencyConflictError is returned when the instance's persisted state or
// version no longer matches what the caller based its request on.
type ConcurrencyConflictError struct {
	InstanceID      string
	Expected        State
	Actual          State
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Expected == e.Actual && e.ExpectedVersion != 0 {
		return fmt.Sprintf("instance %q is at version %d, expected %d", e.InstanceID, e.ActualVersion, e.ExpectedVersion)
	}
	return fmt.Sprintf("instance %q is in state %q, expected %q", e.InstanceID, e.Actual, e.Expected)
}

// PersistenceError wraps a failure of the underlying store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
