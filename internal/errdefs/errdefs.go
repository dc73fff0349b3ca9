// Package errdefs defines the error kinds shared across mvprep packages.
//
// Callers test kinds with errors.Is; constructors attach context with
// github.com/pkg/errors so the kind survives wrapping.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned when a caller supplied an unusable value,
	// such as an unknown pose convention.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDegenerateInput is returned when the data cannot support the computation,
	// such as coincident camera centers or an empty carved volume.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrPreconditionViolation is returned when an operation runs on data in the wrong
	// state, such as carving a non-pinhole camera.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrNotImplemented is returned by operations that are deliberately unsupported.
	ErrNotImplemented = errors.New("not implemented")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrap(ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// DegenerateInput wraps ErrDegenerateInput with a formatted message.
func DegenerateInput(format string, args ...interface{}) error {
	return errors.Wrap(ErrDegenerateInput, fmt.Sprintf(format, args...))
}

// PreconditionViolation wraps ErrPreconditionViolation with a formatted message.
func PreconditionViolation(format string, args ...interface{}) error {
	return errors.Wrap(ErrPreconditionViolation, fmt.Sprintf(format, args...))
}

// NotImplemented wraps ErrNotImplemented with the name of the unsupported operation.
func NotImplemented(op string) error {
	return errors.Wrap(ErrNotImplemented, op)
}
