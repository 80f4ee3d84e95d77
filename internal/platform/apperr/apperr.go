// Package apperr defines the error kinds returned by the booking core.
//
// Every recoverable failure carries a stable Kind so callers and the HTTP layer
// can branch on it without matching message strings. Errors from
// infrastructure (database, cache) are not *Error values and are reported as
// internal failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindExpired           Kind = "expired"
	KindInvalidStep       Kind = "invalid_step"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidToken      Kind = "invalid_token"
	KindUnauthorized      Kind = "unauthorized"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInconsistent      Kind = "inconsistent"
	KindInternal          Kind = "internal"
)

// Error is a classified failure. Slots carries the refreshed open-slot list
// for kinds where the client needs it to re-prompt (Conflict, Expired).
type Error struct {
	Kind    Kind     `json:"error"`
	Message string   `json:"message"`
	Step    string   `json:"step,omitempty"`
	Slots   []string `json:"slots,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two *Error values by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithSlots returns a copy of e carrying the given slot list.
func (e *Error) WithSlots(slots []string) *Error {
	cp := *e
	cp.Slots = append([]string{}, slots...)
	return &cp
}

// WithStep returns a copy of e carrying the session step after the failure.
func (e *Error) WithStep(step string) *Error {
	cp := *e
	cp.Step = step
	return &cp
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func Expired(format string, args ...interface{}) *Error {
	return newf(KindExpired, format, args...)
}

func InvalidStep(format string, args ...interface{}) *Error {
	return newf(KindInvalidStep, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func InvalidToken(format string, args ...interface{}) *Error {
	return newf(KindInvalidToken, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newf(KindUnauthenticated, format, args...)
}

func Inconsistent(format string, args ...interface{}) *Error {
	return newf(KindInconsistent, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var statusByKind = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindExpired:           http.StatusGone,
	KindInvalidStep:       http.StatusConflict,
	KindInvalidTransition: http.StatusUnprocessableEntity,
	KindInvalidToken:      http.StatusConflict,
	KindUnauthorized:      http.StatusForbidden,
	KindUnauthenticated:   http.StatusUnauthorized,
	KindInconsistent:      http.StatusInternalServerError,
	KindInternal:          http.StatusInternalServerError,
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
