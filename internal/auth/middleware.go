package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is a package-private type so no other package can read or shadow
// the values stored under it.
type contextKey string

const profileIDKey contextKey = "profileID"

// TokenCookie is the HttpOnly cookie that carries the access token for
// browser clients.
const TokenCookie = "token"

var errNoToken = errors.New("auth: no token")

// AccessValidator is the part of TokenService the middleware needs.
type AccessValidator interface {
	ValidateAccess(tokenStr string) (string, error)
}

// RequireAuth enforces authentication on protected routes.
//
// The access token is taken from "Authorization: Bearer <jwt>" first and the
// "token" cookie second. On success the verified profile id is stored in the
// request context; this is the ONLY place a caller identity comes from. On
// failure the request stops here with 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID, err := extractProfileID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithProfileID(r.Context(), profileID)))
		})
	}
}

// WithProfileID returns a context carrying a verified profile id. Handler
// tests use it to skip token plumbing.
func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileIDKey, profileID)
}

// ProfileIDFromContext returns the authenticated profile id, or ("", false)
// for an anonymous request.
func ProfileIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(profileIDKey).(string)
	return id, ok && id != ""
}

func extractProfileID(r *http.Request, tokens AccessValidator) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errNoToken
		}
		return tokens.ValidateAccess(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return "", errNoToken
	}
	return tokens.ValidateAccess(cookie.Value)
}
