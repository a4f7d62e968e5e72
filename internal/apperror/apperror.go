// Package apperror classifies business failures into stable kinds.
//
// Handlers map kinds to HTTP status codes; callers match on the kind,
// never on message text.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable failure classification.
type Kind int

const (
	Internal           Kind = iota // unexpected store failure, data-integrity anomaly
	Unauthenticated                // no valid caller identity
	InvalidArgument                // malformed or out-of-range request fields
	NotFound                       // missing account, recipient, or pending transaction
	FailedPrecondition             // business-state conflict (insufficient balance, already completed)
	ResourceExhausted              // rate limit
	PermissionDenied               // authorization failure or high-risk fraud block
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case FailedPrecondition:
		return "failed_precondition"
	case ResourceExhausted:
		return "resource_exhausted"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status code for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case FailedPrecondition:
		return http.StatusConflict
	case ResourceExhausted:
		return http.StatusTooManyRequests
	case PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a user-facing message, and an optional cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates an error with a kind and user-facing message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an error with a formatted user-facing message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Message returns the user-facing message without the cause chain.
func (e *Error) Message() string { return e.msg }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the kind from any error. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return Internal
}

// MessageOf returns the user-facing message for any error. Unclassified
// errors get a generic message so internals never leak to callers.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.msg
	}
	return "internal error"
}
