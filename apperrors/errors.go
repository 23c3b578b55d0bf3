// Package apperrors provides the typed failures returned by the forecasting
// pipeline and their mapping to HTTP status codes.
package apperrors

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal            Code = "INTERNAL"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeDataUnavailable     Code = "DATA_UNAVAILABLE"
	CodeInsufficientHistory Code = "INSUFFICIENT_HISTORY"
	CodeDegenerateSeries    Code = "DEGENERATE_SERIES"
	CodeModelNotFound       Code = "MODEL_NOT_FOUND"
	CodeArtifactMissing     Code = "ARTIFACT_MISSING"
	CodeStateMismatch       Code = "STATE_MISMATCH"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrInvalidRequest      = New(CodeInvalidRequest, "invalid request")
	ErrDataUnavailable     = New(CodeDataUnavailable, "data unavailable")
	ErrInsufficientHistory = New(CodeInsufficientHistory, "insufficient history")
	ErrDegenerateSeries    = New(CodeDegenerateSeries, "degenerate series")
	ErrModelNotFound       = New(CodeModelNotFound, "model not found")
	ErrArtifactMissing     = New(CodeArtifactMissing, "artifact missing")
	ErrStateMismatch       = New(CodeStateMismatch, "state mismatch")
)

// HTTPStatus maps a code to the status the service layer answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeModelNotFound:
		return http.StatusNotFound
	case CodeInsufficientHistory, CodeDegenerateSeries:
		return http.StatusUnprocessableEntity
	case CodeDataUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs)
	Cause   error  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, CodeInternal
// for any other non-nil error and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Typed converts err into an *Error, wrapping unknown failures as internal.
func Typed(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(CodeInternal, "internal error", err)
}
