package catalog

import (
	"errors"
	"fmt"
)

// Error represents a rejected catalog operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Name is the dataflow involved.
	Name string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes catalog errors.
type ErrorCode string

const (
	// ErrCodeDuplicate indicates a name that is already registered.
	ErrCodeDuplicate ErrorCode = "DUPLICATE"

	// ErrCodeUnknownDependency indicates a use of an unregistered name.
	ErrCodeUnknownDependency ErrorCode = "UNKNOWN_DEPENDENCY"

	// ErrCodeCycle indicates dataflows that depend on each other.
	ErrCodeCycle ErrorCode = "CYCLE"

	// ErrCodeNotFound indicates an unregistered name.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeHasDependents indicates a removal that would orphan dependents.
	ErrCodeHasDependents ErrorCode = "HAS_DEPENDENTS"

	// ErrCodeNotView indicates an as-of operation on a source or sink.
	ErrCodeNotView ErrorCode = "NOT_VIEW"

	// ErrCodeShapeMismatch indicates a sink whose upstream shape differs
	// from the registered upstream.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	// ErrCodeInvalid indicates a dataflow that failed validation.
	ErrCodeInvalid ErrorCode = "INVALID"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Name, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, name, format string, args ...any) *Error {
	return &Error{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}

// HasCode returns true if err is a catalog error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDuplicate returns true if err rejects an already registered name.
func IsDuplicate(err error) bool { return HasCode(err, ErrCodeDuplicate) }

// IsUnknownDependency returns true if err rejects a use of an
// unregistered name.
func IsUnknownDependency(err error) bool { return HasCode(err, ErrCodeUnknownDependency) }

// IsCycle returns true if err rejects a dependency cycle.
func IsCycle(err error) bool { return HasCode(err, ErrCodeCycle) }

// IsNotFound returns true if err reports an unregistered name.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }
