// Package apperror defines the error kinds shared by every layer of the app.
//
// Each kind is a sentinel error. Constructors wrap the sentinel in an *AppError
// carrying a human-readable message, so callers test the kind with errors.Is and
// read the message with errors.As. Only the handler layer turns kinds into HTTP
// status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Social graph kinds.
	ErrSelfEdge        = errors.New("self edge")
	ErrRequestNotFound = errors.New("request not found")

	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTransient marks a store failure that is safe to retry: a timeout,
	// a cancelled context or a lock conflict.
	ErrTransient = errors.New("transient store failure")

	// ErrInvariant marks a detected cross-reference inconsistency in the
	// relationship sets. It is never repaired automatically.
	ErrInvariant = errors.New("invariant violation")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ProfileNotFound is the NotFound flavour used when the lookup key is a username.
func ProfileNotFound(username string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("profile %q not found", username),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s is already taken", resource, key),
		Field:   resource,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func SelfEdge() *AppError {
	return &AppError{
		Err:     ErrSelfEdge,
		Message: "you cannot follow or request yourself",
	}
}

func RequestNotFound(requesterID string) *AppError {
	return &AppError{
		Err:     ErrRequestNotFound,
		Message: fmt.Sprintf("no pending follow request from %s", requesterID),
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Transient wraps a retryable store failure. op names the operation that failed.
func Transient(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: fmt.Sprintf("%s: temporarily unavailable, retry", op),
		Cause:   cause,
	}
}

// Invariant reports a relationship-set inconsistency between two profiles.
func Invariant(detail string) *AppError {
	return &AppError{
		Err:     ErrInvariant,
		Message: "invariant violation: " + detail,
	}
}

// Kind returns the machine-readable name of err's kind, e.g. "not_found".
// Errors that carry no kind are "internal_error"; nil is "ok".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSelfEdge):
		return "self_edge"
	case errors.Is(err, ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTransient):
		return "transient_store_failure"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	}
	return "internal_error"
}
