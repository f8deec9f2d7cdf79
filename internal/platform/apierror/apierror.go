// Package apierror defines the error kinds surfaced by the HTTP API and the
// echo error handler that renders them in the standard response envelope.
package apierror

import (
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindAuth:       http.StatusUnauthorized,
	KindForbidden:  http.StatusForbidden,
	KindNotFound:   http.StatusNotFound,
	KindConflict:   http.StatusConflict,
	KindInternal:   http.StatusInternalServerError,
}

// Error is a client-facing failure. Field names the offending input for
// validation errors. Err holds the underlying cause and is never shown to
// clients outside development.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error

	status int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}
