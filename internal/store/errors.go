package store

import (
	"errors"
	"fmt"
)

// Error represents a catalog persistence failure.
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

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeNotPersistable indicates a dataflow that cannot outlive the
	// process, such as a tail sink.
	ErrCodeNotPersistable ErrorCode = "NOT_PERSISTABLE"

	// ErrCodeConflict indicates a different definition already stored
	// under the same name.
	ErrCodeConflict ErrorCode = "DEFINITION_CONFLICT"

	// ErrCodeNotFound indicates no dataflow is stored under the name.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNotView indicates an as-of operation on a source or sink.
	ErrCodeNotView ErrorCode = "NOT_VIEW"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
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

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotPersistable returns true if the dataflow cannot be stored.
func IsNotPersistable(err error) bool { return hasCode(err, ErrCodeNotPersistable) }

// IsConflict returns true if a different definition is already stored.
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// IsNotFound returns true if no dataflow is stored under the name.
// The error also matches sql.ErrNoRows with errors.Is.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }
