package expr

import (
	"errors"
	"fmt"
)

// Error represents a malformed expression or a failed evaluation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes expression errors.
type ErrorCode string

const (
	// ErrCodeColumnOutOfRange indicates a column index beyond the input arity.
	ErrCodeColumnOutOfRange ErrorCode = "COLUMN_OUT_OF_RANGE"

	// ErrCodeArityMismatch indicates inputs of incompatible arity.
	ErrCodeArityMismatch ErrorCode = "ARITY_MISMATCH"

	// ErrCodeTypeMismatch indicates an operator applied to the wrong datum kind.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownFunc indicates an unrecognized function name.
	ErrCodeUnknownFunc ErrorCode = "UNKNOWN_FUNC"

	// ErrCodeMalformed indicates a structurally invalid node (e.g. nil child).
	ErrCodeMalformed ErrorCode = "MALFORMED"

	// ErrCodeOverflow indicates integer overflow during evaluation.
	ErrCodeOverflow ErrorCode = "OVERFLOW"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsColumnOutOfRange returns true if the error reports a bad column index.
// Uses errors.As to handle wrapped errors.
func IsColumnOutOfRange(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeColumnOutOfRange
	}
	return false
}
