// GO TESTING BASICS:
// 1. Test files MUST end in _test.go; Go's tooling auto-discovers them
// 2. Test functions MUST start with "Test" and take *testing.T as the only param
// 3. Same package as the code being tested (so we can access unexported stuff)
// 4. Run with: go test ./internal/apperror/ -v
package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"NotFound wraps ErrNotFound", NotFound("profile", "abc123"), ErrNotFound, true},
		{"ProfileNotFound wraps ErrNotFound", ProfileNotFound("bob"), ErrNotFound, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("bio", "bio is too long"), ErrValidation, true},
		{"Conflict wraps ErrConflict", Conflict("username", "alice"), ErrConflict, true},
		{"SelfEdge wraps ErrSelfEdge", SelfEdge(), ErrSelfEdge, true},
		{"RequestNotFound wraps ErrRequestNotFound", RequestNotFound("abc"), ErrRequestNotFound, true},
		{"Unauthenticated wraps ErrUnauthenticated", Unauthenticated("no token"), ErrUnauthenticated, true},
		{"Transient wraps ErrTransient", Transient("accept", context.DeadlineExceeded), ErrTransient, true},
		{"Transient keeps its cause", Transient("accept", context.DeadlineExceeded), context.DeadlineExceeded, true},
		{"Invariant wraps ErrInvariant", Invariant("half edge"), ErrInvariant, true},
		{"NotFound does NOT match ErrValidation", NotFound("profile", "abc123"), ErrValidation, false},
		{"RequestNotFound does NOT match ErrNotFound", RequestNotFound("abc"), ErrNotFound, false},
		{"wrapped with %w still matches", fmt.Errorf("accepting: %w", RequestNotFound("abc")), ErrRequestNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound message includes resource and id", NotFound("profile", "abc123"), "profile not found with id abc123"},
		{"ProfileNotFound quotes the username", ProfileNotFound("bob"), `profile "bob" not found`},
		{"ValidationFailed uses custom message", ValidationFailed("bio", "bio is too long"), "bio is too long"},
		{"Conflict names the taken key", Conflict("username", "alice"), "username alice is already taken"},
		{"Transient names the operation", Transient("accept request", nil), "accept request: temporarily unavailable, retry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("profile", "abc123")
	unwrapped := err.Unwrap()

	if len(unwrapped) != 1 || unwrapped[0] != ErrNotFound {
		t.Errorf("Unwrap() = %v, want [%v]", unwrapped, ErrNotFound)
	}

	cause := errors.New("database is locked")
	withCause := Transient("unfollow", cause).Unwrap()
	if len(withCause) != 2 || withCause[1] != cause {
		t.Errorf("Unwrap() with cause = %v, want [%v %v]", withCause, ErrTransient, cause)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("contactPhone", "contactPhone is too long")

	if err.Field != "contactPhone" {
		t.Errorf("Field = %q, want %q", err.Field, "contactPhone")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{NotFound("profile", "x"), "not_found"},
		{fmt.Errorf("wrapped: %w", SelfEdge()), "self_edge"},
		{RequestNotFound("x"), "request_not_found"},
		{ValidationFailed("bio", "too long"), "validation_error"},
		{Conflict("username", "bob"), "conflict"},
		{Unauthenticated("no"), "unauthenticated"},
		{Forbidden("no"), "forbidden"},
		{Transient("op", context.Canceled), "transient_store_failure"},
		{Invariant("half edge"), "invariant_violation"},
		{errors.New("disk on fire"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
