package timely

import (
	"errors"
	"fmt"
)

// ProtocolError represents a violation of the temporal contract between a
// source and its consumers.
//
// Protocol errors include:
//   - Watermark regression: a watermark lower than one already announced
//   - Late update: an update timestamped before the current watermark
//   - Frontier loosening: an as-of moved backwards instead of forwards
//
// ProtocolError is recoverable: the offending signal is rejected and the
// tracker's state is unchanged.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Source identifies the offending source, if known.
	Source string

	// Current is the bound already established.
	Current Timestamp

	// Got is the value that violated the bound.
	Got Timestamp
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeWatermarkRegression indicates a watermark moved backwards.
	ErrCodeWatermarkRegression ProtocolErrorCode = "WATERMARK_REGRESSION"

	// ErrCodeLateUpdate indicates an update arrived behind the watermark.
	ErrCodeLateUpdate ProtocolErrorCode = "LATE_UPDATE"

	// ErrCodeFrontierLoosened indicates a frontier moved backwards.
	ErrCodeFrontierLoosened ProtocolErrorCode = "FRONTIER_LOOSENED"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	var what string
	switch e.Code {
	case ErrCodeWatermarkRegression:
		what = fmt.Sprintf("watermark %d precedes current watermark %d", e.Got, e.Current)
	case ErrCodeLateUpdate:
		what = fmt.Sprintf("update at %d precedes watermark %d", e.Got, e.Current)
	case ErrCodeFrontierLoosened:
		what = fmt.Sprintf("frontier element %d precedes established bound %d", e.Got, e.Current)
	default:
		what = fmt.Sprintf("got %d against %d", e.Got, e.Current)
	}
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (source=%s)", e.Code, what, e.Source)
	}
	return fmt.Sprintf("%s: %s", e.Code, what)
}

// IsWatermarkRegression returns true if the error is a watermark regression.
// Uses errors.As to handle wrapped errors.
func IsWatermarkRegression(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeWatermarkRegression
	}
	return false
}

// IsLateUpdate returns true if the error is a late update.
func IsLateUpdate(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeLateUpdate
	}
	return false
}

// IsFrontierLoosened returns true if the error is a loosened frontier.
func IsFrontierLoosened(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeFrontierLoosened
	}
	return false
}
