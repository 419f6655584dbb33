// Package apperr defines the error taxonomy shared by the admission, order and
// payment services. Handlers map kinds to HTTP statuses; services return these
// instead of bare fmt.Errorf so that the counter staff always sees an
// actionable reason.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure.
type Kind int

const (
	// Internal is any failure that is not one of the typed kinds below.
	Internal Kind = iota
	// NotFound means a referenced request, order, test or lab does not exist.
	NotFound
	// InvalidState means the entity's current state forbids the operation.
	InvalidState
	// AlreadyProcessed means an idempotency guard tripped.
	AlreadyProcessed
	// PermissionDenied means the caller lacks a required capability.
	PermissionDenied
	// ValidationFailed means the input is malformed or semantically invalid.
	ValidationFailed
	// BalanceExceeded means a payment amount exceeds the outstanding balance.
	BalanceExceeded
	// ReferenceUnavailable means a catalog test referenced by a pre-order is
	// no longer active at conversion time.
	ReferenceUnavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidState:
		return "invalid_state"
	case AlreadyProcessed:
		return "already_processed"
	case PermissionDenied:
		return "permission_denied"
	case ValidationFailed:
		return "validation_failed"
	case BalanceExceeded:
		return "balance_exceeded"
	case ReferenceUnavailable:
		return "reference_unavailable"
	default:
		return "internal"
	}
}

// Error is a typed domain error.
type Error struct {
	Kind Kind
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

// New builds a typed error with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(k Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, or Internal if err is not typed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPStatus maps an error to the status code its kind is served with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidState, AlreadyProcessed, ReferenceUnavailable:
		return http.StatusConflict
	case PermissionDenied:
		return http.StatusForbidden
	case ValidationFailed:
		return http.StatusBadRequest
	case BalanceExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
