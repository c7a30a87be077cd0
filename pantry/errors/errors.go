// Package errors carries client-facing errors through handlers: a stable
// code, a message safe to show, and the HTTP status the code maps to.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/signup/httputil"
)

// Error codes.
const (
	CodeBadRequest           = "bad_request"
	CodeInvalidInput         = "invalid_input"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeConflict             = "conflict"
	CodeGone                 = "gone"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeTooManyRequests      = "too_many_requests"
	CodeInternalError        = "internal_error"
	CodeServiceUnavailable   = "service_unavailable"
)

var statusOf = map[string]int{
	CodeBadRequest:           http.StatusBadRequest,
	CodeInvalidInput:         http.StatusBadRequest,
	CodeNotFound:             http.StatusNotFound,
	CodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	CodeConflict:             http.StatusConflict,
	CodeGone:                 http.StatusGone,
	CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	CodeTooManyRequests:      http.StatusTooManyRequests,
	CodeInternalError:        http.StatusInternalServerError,
	CodeServiceUnavailable:   http.StatusServiceUnavailable,
}

// Error is a client error. Field names the offending input, if any. Err is
// the cause and is never sent to the client.
type Error struct {
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status for e's code; unknown codes are 500.
func (e *Error) HTTPStatus() int {
	if s, ok := statusOf[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Body returns the payload of the JSON error envelope.
func (e *Error) Body() httputil.ErrorBody {
	return httputil.ErrorBody{Code: e.Code, Message: e.Message, Field: e.Field}
}

// New returns an error with code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an error with code and message caused by err.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// From returns the *Error in err's chain. Anything else becomes an
// internal error that hides its cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternalError, "an internal error occurred")
}

// Case maps a sentinel error to a client error.
type Case struct {
	Target  error
	Code    string
	Message string
	Field   string
}

// Translate returns the client error of the first case whose target is in
// err's chain, or From(err) when none matches. The result wraps err.
func Translate(err error, cases ...Case) *Error {
	if err == nil {
		return nil
	}
	for _, c := range cases {
		if errors.Is(err, c.Target) {
			return &Error{Code: c.Code, Message: c.Message, Field: c.Field, Err: err}
		}
	}
	return From(err)
}

func BadRequest(message string) *Error { return New(CodeBadRequest, message) }

// InvalidInput names the field a client got wrong.
func InvalidInput(field, message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message, Field: field}
}

func NotFound(message string) *Error           { return New(CodeNotFound, message) }
func Conflict(message string) *Error           { return New(CodeConflict, message) }
func Gone(message string) *Error               { return New(CodeGone, message) }
func TooManyRequests(message string) *Error    { return New(CodeTooManyRequests, message) }
func ServiceUnavailable(message string) *Error { return New(CodeServiceUnavailable, message) }
