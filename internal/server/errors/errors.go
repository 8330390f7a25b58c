// Package errors holds the error taxonomy shared by the managers and the
// HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindAlreadyExists        Kind = "ALREADY_EXISTS"
	KindHasChildren          Kind = "HAS_CHILDREN"
	KindUnsupportedMediaType Kind = "UNSUPPORTED_MEDIA_TYPE"
	KindBadRequest           Kind = "BAD_REQUEST"
	KindInternal             Kind = "INTERNAL"
	KindRemoteCommitFailed   Kind = "REMOTE_COMMIT_FAILED"
)

// Error is an application error with a kind.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause wraps an underlying error
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetail adds one detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error for the named resource.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func AlreadyExists(format string, args ...any) *Error {
	return New(KindAlreadyExists, format, args...)
}

func HasChildren(format string, args ...any) *Error {
	return New(KindHasChildren, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	return New(KindInternal, format, args...).WithCause(err)
}

// UnsupportedMediaType lists the media types that could have been served.
func UnsupportedMediaType(requested string, supported []string) *Error {
	return New(KindUnsupportedMediaType, "unsupported media type: %s", requested).
		WithDetail("supported", supported)
}

// RemoteCommitFailed records a rejected link commit.
func RemoteCommitFailed(status int, body string) *Error {
	return New(KindRemoteCommitFailed, "remote commit failed with status %d", status).
		WithDetail("status", status).
		WithDetail("body", body)
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}
