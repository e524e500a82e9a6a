// Package apperr defines the error kinds the API surfaces to clients and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Msg is safe to show to the user; Err keeps
// the underlying cause for logs.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and, when set, Code. This lets callers
// compare against sentinels such as ErrDuplicateRequest.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Retryable reports whether the client may safely retry the same call.
func (e *Error) Retryable() bool { return e.Kind == KindIntegrity }

// WithErr returns a copy of e carrying cause.
func (e *Error) WithErr(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Auth(format string, args ...interface{}) *Error {
	return newf(KindAuth, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(code, format string, args ...interface{}) *Error {
	e := newf(KindConflict, format, args...)
	e.Code = code
	return e
}

// Integrity reports a workflow write that failed part way. The transaction
// has been rolled back; the user should retry.
func Integrity(cause error, format string, args ...interface{}) *Error {
	e := newf(KindIntegrity, format, args...)
	e.Err = cause
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Body is the JSON error payload returned by the API.
type Body struct {
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// HTTP converts err into an *echo.HTTPError. Unclassified errors become a
// generic 500 and keep the cause as Internal for the request logger.
func HTTP(err error) *echo.HTTPError {
	var ae *Error
	if !errors.As(err, &ae) {
		he := echo.NewHTTPError(http.StatusInternalServerError, Body{
			Kind:    KindInternal.String(),
			Message: "internal server error",
		})
		return he.SetInternal(err)
	}
	msg := ae.Msg
	if ae.Kind == KindIntegrity {
		msg += "; please try again"
	}
	he := echo.NewHTTPError(ae.Kind.Status(), Body{
		Kind:      ae.Kind.String(),
		Code:      ae.Code,
		Message:   msg,
		Retryable: ae.Retryable(),
	})
	if ae.Err != nil {
		he = he.SetInternal(ae.Err)
	}
	return he
}
