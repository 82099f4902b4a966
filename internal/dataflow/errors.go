package dataflow

import (
	"errors"
	"fmt"
)

// ErrNoShape is returned by DescOf for a dataflow without a row shape of
// its own (a Sink).
var ErrNoShape = errors.New("dataflow has no row shape")

// Error represents an invalid dataflow definition or operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Name is the dataflow involved, if known.
	Name string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes dataflow errors.
type ErrorCode string

const (
	// ErrCodeAsOfLoosened indicates an as-of moved backwards.
	ErrCodeAsOfLoosened ErrorCode = "AS_OF_LOOSENED"

	// ErrCodeInvalid indicates a structurally invalid dataflow.
	ErrCodeInvalid ErrorCode = "INVALID_DATAFLOW"

	// ErrCodeUnknownTail indicates a tail sink whose channel id is not
	// registered in this process.
	ErrCodeUnknownTail ErrorCode = "UNKNOWN_TAIL_HANDLE"

	// ErrCodeDecode indicates an encoding that does not parse as a dataflow.
	ErrCodeDecode ErrorCode = "DECODE"
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
	if e.Name != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Name, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(name, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalid, Name: name, Message: fmt.Sprintf(format, args...)}
}

// IsAsOfLoosened returns true if the error rejects a loosened as-of.
// Uses errors.As to handle wrapped errors.
func IsAsOfLoosened(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeAsOfLoosened
	}
	return false
}

// IsInvalid returns true if the error reports an invalid dataflow.
func IsInvalid(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalid
	}
	return false
}

// IsUnknownTail returns true if decoding failed on an unregistered tail
// channel.
func IsUnknownTail(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeUnknownTail
	}
	return false
}
