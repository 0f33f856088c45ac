// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the store
//
// Services take repository interfaces, never a concrete store, so the same
// code runs on SQLite in production and on the in-memory arena in tests.
//
// CALLER IDENTITY:
// Every method that acts on behalf of a user takes the caller's profile id as
// a plain string. That id must come from a verified token (auth.RequireAuth);
// services never trust an id found in a request body.
//
// TIMEOUTS:
// Each operation runs under its own deadline (STORE_TIMEOUT). A store that
// cannot finish in time returns apperror.ErrTransient and the caller may retry.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/metrics"
)

// DefaultTimeout bounds a single service operation when none is configured.
const DefaultTimeout = 5 * time.Second

// withTimeout derives the per-operation context.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// observe is deferred at the top of every public operation:
//
//	defer observe("accept_request", time.Now(), &err)
func observe(op string, start time.Time, errp *error) {
	metrics.ObserveGraphOp(op, apperror.Kind(*errp), start)
}

// normalizeUsername is applied to every username on its way in: usernames are
// stored lowercased and looked up the same way.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// reportInvariant logs a detected relationship inconsistency. Nothing is
// repaired: the audit and an operator decide what the right state is.
func reportInvariant(logger *slog.Logger, op string, err error, attrs ...any) {
	metrics.InvariantViolationsTotal.Inc()
	logger.Error("relationship invariant violated",
		append([]any{slog.String("op", op), slog.String("error", err.Error())}, attrs...)...,
	)
}
