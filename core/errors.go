package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an event, record or relationship endpoint
	// does not resolve to a known id.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed input rejected before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// TransportError wraps a transport failure during publish. When it is
// returned the event is not guaranteed durable and the caller must decide on
// retry; the bus never retries on its own.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransportError) Unwrap() error { return e.Err }

// UnknownTaskTypeError is returned by the dispatcher when no handler is
// registered for a task's type.
type UnknownTaskTypeError struct {
	Type TaskType
}

func (e *UnknownTaskTypeError) Error() string { return fmt.Sprintf("unknown task type: %s", e.Type) }

// HandlerExecutionError wraps a failure (error or recovered panic) inside a
// subsystem handler. The dispatcher publishes a task.error event and then
// re-raises this to the synchronous caller; errors are reported, not
// swallowed.
type HandlerExecutionError struct {
	TaskType TaskType
	Err      error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("handler for %s failed: %v", e.TaskType, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *HandlerExecutionError) Unwrap() error { return e.Err }
