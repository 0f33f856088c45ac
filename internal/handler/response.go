package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so every error from
// the API has the same shape:
//
//	{"error": "request_not_found", "message": "no pending follow request from ..."}
//
// "error" is the machine-readable kind (apperror.Kind), "message" is for people.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/botnet/internal/apperror"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error kind (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// statusByKind maps apperror kinds to HTTP statuses. Anything not listed is 500.
var statusByKind = map[string]int{
	"validation_error":        http.StatusBadRequest,
	"not_found":               http.StatusNotFound,
	"self_edge":               http.StatusUnprocessableEntity,
	"request_not_found":       http.StatusConflict,
	"conflict":                http.StatusConflict,
	"unauthenticated":         http.StatusUnauthorized,
	"forbidden":               http.StatusForbidden,
	"transient_store_failure": http.StatusServiceUnavailable,
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status go out BEFORE the body: once Encode writes, any header
// change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// This is the only place a kind becomes a status. Services return
// apperror kinds wrapped with %w; errors.Is walks the chain to find them.
//
// Invariant violations and unknown errors are 500 and carry a generic message:
// the raw text might contain SQL, ids or file paths.
func writeError(w http.ResponseWriter, err error) {
	kind := apperror.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   kind,
			Message: "An internal error occurred",
		})
		return
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	message := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// decodeJSON reads a single JSON object into dst. Unknown fields are a
// validation error, so a body carrying "followers" or "username" is rejected
// rather than silently ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is empty")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", fmt.Sprintf("request body must be %d bytes or fewer", maxErr.Limit))
		default:
			return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("", "request body must contain a single JSON object")
	}
	return nil
}
