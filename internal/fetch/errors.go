// Package fetch defines the failure taxonomy shared by the remote
// clients and the resolver.
package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a resolution failure.
type ErrorKind int

const (
	// ErrTransient covers timeouts, 5xx responses and secondary rate
	// limiting; retried internally before becoming terminal.
	ErrTransient ErrorKind = iota
	// ErrNotFound is a definitive 404/410; never retried.
	ErrNotFound
	// ErrForbidden is a definitive 403 access denial; never retried.
	ErrForbidden
	// ErrRangeOutOfBounds means a requested line span exceeds the file.
	ErrRangeOutOfBounds
	// ErrAmbiguousRepo means a bare repository name matched no
	// candidate in the popularity search.
	ErrAmbiguousRepo
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrRangeOutOfBounds:
		return "range_out_of_bounds"
	case ErrAmbiguousRepo:
		return "ambiguous_repository"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure. Resource names what was being
// fetched, for log output; it is never shown to chat users.
type Error struct {
	Kind     ErrorKind
	Resource string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Resource, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a definitive not-found error.
func NotFound(resource string) *Error {
	return &Error{Kind: ErrNotFound, Resource: resource}
}

// Forbidden builds a definitive access-denied error.
func Forbidden(resource string) *Error {
	return &Error{Kind: ErrForbidden, Resource: resource}
}

// Transient builds a retryable error wrapping the underlying cause.
func Transient(resource string, err error) *Error {
	return &Error{Kind: ErrTransient, Resource: resource, Err: err}
}

// KindOf extracts the classification from err. Unclassified errors
// (plain network failures and the like) report as transient.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrTransient
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return KindOf(err) == ErrTransient
}
