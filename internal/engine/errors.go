package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by blocking calls once the Run loop has exited.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors include:
//   - Input for a name that is not a registered source
//   - Late updates and watermark regressions
//   - Evaluation failures (type mismatches, overflow, negative multiplicities)
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Name identifies the affected source, view or sink.
	Name string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownSource indicates input for a name that is not a source.
	ErrCodeUnknownSource RuntimeErrorCode = "UNKNOWN_SOURCE"

	// ErrCodeProtocol indicates a late update or a watermark regression.
	ErrCodeProtocol RuntimeErrorCode = "PROTOCOL"

	// ErrCodeEval indicates a view could not be evaluated.
	ErrCodeEval RuntimeErrorCode = "EVAL"

	// ErrCodeBeforeAsOf indicates a read at a timestamp the view's as-of
	// has compacted away.
	ErrCodeBeforeAsOf RuntimeErrorCode = "BEFORE_AS_OF"

	// ErrCodeNegativeMultiplicity indicates a result row present fewer
	// than zero times.
	ErrCodeNegativeMultiplicity RuntimeErrorCode = "NEGATIVE_MULTIPLICITY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (name=%s)", e.Code, msg, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownSource returns true if input named something other than a source.
// Uses errors.As to handle wrapped errors.
func IsUnknownSource(err error) bool { return hasCode(err, ErrCodeUnknownSource) }

// IsProtocolError returns true for late updates and watermark regressions.
func IsProtocolError(err error) bool { return hasCode(err, ErrCodeProtocol) }

// IsEvalError returns true if a view could not be evaluated.
func IsEvalError(err error) bool { return hasCode(err, ErrCodeEval) }

// IsBeforeAsOf returns true if a read preceded the view's as-of.
func IsBeforeAsOf(err error) bool { return hasCode(err, ErrCodeBeforeAsOf) }

// IsNegativeMultiplicity returns true if a result had a negative count.
func IsNegativeMultiplicity(err error) bool { return hasCode(err, ErrCodeNegativeMultiplicity) }

func evalError(name, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeEval, Name: name, Message: fmt.Sprintf(format, args...)}
}
