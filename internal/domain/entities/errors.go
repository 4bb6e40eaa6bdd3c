package entities

import (
	"errors"
	"fmt"
)

// Failure classes an invocation can hit while handling one item.
var (
	ErrMissingRecipient = errors.New("missing recipient")
	ErrTransport        = errors.New("transport failure")
	ErrStore            = errors.New("store failure")
)

// OpError attaches the failing operation and item to one of the failure
// classes above. errors.Is matches both the class and the cause.
type OpError struct {
	Class  error
	Op     string
	TodoID string
	Err    error
}

func (e *OpError) Error() string {
	if e.TodoID == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("%s todo %s: %v: %v", e.Op, e.TodoID, e.Class, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

func StoreError(op, todoID string, err error) error {
	return &OpError{Class: ErrStore, Op: op, TodoID: todoID, Err: err}
}

func TransportError(op, todoID string, err error) error {
	return &OpError{Class: ErrTransport, Op: op, TodoID: todoID, Err: err}
}
