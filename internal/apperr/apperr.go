// Package apperr is the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindServerError Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConflict:
		return "conflict"
	default:
		return "server_error"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Unauthorized(message string) *Error   { return New(KindUnauthorized, message) }
func InvalidRequest(message string) *Error { return New(KindInvalidRequest, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }

// Internal wraps an unexpected failure. The message is what the client sees.
func Internal(message string, err error) *Error {
	return Wrap(KindServerError, message, err)
}

// KindOf reports the kind of err; errors outside the taxonomy are server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerError
}

// PublicMessage is the text safe to return to a client. Server errors never
// expose their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindServerError {
		return e.Message
	}
	return "internal server error"
}
