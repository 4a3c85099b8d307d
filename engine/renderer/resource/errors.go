package resource

import (
	"errors"
	"fmt"
)

// Resource error kinds. Every error returned by the Manager is a *ResourceError whose Kind is one
// of these.
var (
	// ErrFormatMismatch is the kind returned when targets bound to a pipeline do not match its
	// declared output or depth formats.
	ErrFormatMismatch = errors.New("resource: format mismatch")

	// ErrAllocationFailure is the kind returned when the device rejects an allocation.
	ErrAllocationFailure = errors.New("resource: allocation failure")

	// ErrInterfaceMismatch is the kind returned when a pipeline config disagrees with the
	// reflected interface of its shaders.
	ErrInterfaceMismatch = errors.New("resource: interface mismatch")

	// ErrCompileFailure is the kind returned when a shader cannot be compiled or reflected.
	ErrCompileFailure = errors.New("resource: shader compile failure")

	// ErrUnknownHandle is the kind returned for zero, released or foreign handles.
	ErrUnknownHandle = errors.New("resource: unknown handle")
)

// ResourceError reports a failed Manager operation.
type ResourceError struct {
	// Op is the manager operation, e.g. "allocate" or "bind".
	Op string
	// Label is the label or key of the resource involved.
	Label string
	// Kind is one of the package sentinels.
	Kind error
	// Err is the underlying device or validation error, may be nil.
	Err error
}

func (e *ResourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource: %s %s: %v", e.Op, e.Label, e.Kind)
	}
	return fmt.Sprintf("resource: %s %s: %v: %v", e.Op, e.Label, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ResourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, label string, kind, err error) *ResourceError {
	return &ResourceError{Op: op, Label: label, Kind: kind, Err: err}
}
