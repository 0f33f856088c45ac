package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/handler"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository/memory"
	"github.com/sakif/botnet/internal/service"
)

// fakeGitHub stands in for auth.GitHubProvider.
type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(context.Context, string) (*auth.GitHubUser, error) {
	return f.user, f.err
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	tokens *auth.TokenService
	github *fakeGitHub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.New()

	tokens, err := auth.NewTokenService("access-secret-at-least-16", "refresh-secret-at-least-16")
	require.NoError(t, err)

	accounts := service.NewAccountService(store, store, tokens, auth.NewPasswordServiceForTest(4), time.Second, logger)
	profiles := service.NewProfileService(store, time.Second, logger)
	graph := service.NewGraphService(store, store, time.Second, logger)

	gh := &fakeGitHub{}
	authHandler := handler.NewAuthHandler(accounts, gh, false, logger)
	profileHandler := handler.NewProfileHandler(profiles, logger)
	graphHandler := handler.NewGraphHandler(graph, logger)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", profileHandler.HandleMe)
		r.Patch("/me", profileHandler.HandleUpdateMe)
		r.Post("/me/posts", profileHandler.HandleAddPost)
		r.Get("/me/requests", graphHandler.HandleListRequests)
		r.Post("/me/requests/{requesterID}/accept", graphHandler.HandleAcceptRequest)
		r.Delete("/me/requests/{requesterID}", graphHandler.HandleDeclineRequest)
		r.Get("/profiles/{username}", profileHandler.HandleGetProfile)
		r.Post("/profiles/{username}/follow", graphHandler.HandleRequestFollow)
		r.Delete("/profiles/{username}/follow", graphHandler.HandleUnfollow)
		r.Delete("/profiles/{username}/request", graphHandler.HandleWithdrawRequest)
		r.Get("/search", profileHandler.HandleSearch)
	})

	return &testAPI{t: t, router: r, tokens: tokens, github: gh}
}

// do sends a request with an optional bearer token and JSON body.
func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type session struct {
	ID     string
	Access string
	Tokens auth.TokenPair
}

func (a *testAPI) signup(username string) session {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var res service.AuthResult
	require.NoError(a.t, json.NewDecoder(rec.Body).Decode(&res))
	return session{ID: res.Profile.ID, Access: res.Tokens.AccessToken, Tokens: *res.Tokens}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[handler.ErrorResponse](t, rec).Error
}

func TestFollowFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")
	bob := api.signup("bob")
	carol := api.signup("carol")

	// bob asks to follow alice
	rec := api.do(http.MethodPost, "/api/profiles/alice/follow", bob.Access, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "requested", decode[map[string]string](t, rec)["outcome"])

	rec = api.do(http.MethodPost, "/api/profiles/alice/follow", bob.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_requested", decode[map[string]string](t, rec)["outcome"])

	// alice sees the request
	rec = api.do(http.MethodGet, "/api/me/requests", alice.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]model.ProfileSummary](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, bob.ID, pending[0].ID)

	// bob still sees alice restricted
	rec = api.do(http.MethodGet, "/api/profiles/alice", bob.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[map[string]any](t, rec)
	assert.Equal(t, "restricted", view["view"])
	assert.Equal(t, true, view["isRequested"])
	assert.NotContains(t, view, "followers")

	// alice accepts; accepting again is a 409
	rec = api.do(http.MethodPost, "/api/me/requests/"+bob.ID+"/accept", alice.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodPost, "/api/me/requests/"+bob.ID+"/accept", alice.Access, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "request_not_found", errorKind(t, rec))

	// bob now gets the full view, carol still the restricted one
	rec = api.do(http.MethodGet, "/api/profiles/alice", bob.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decode[model.FullProfileView](t, rec)
	assert.Equal(t, "full", full.View)
	require.Len(t, full.Followers, 1)
	assert.Equal(t, "bob", full.Followers[0].Username)

	rec = api.do(http.MethodGet, "/api/profiles/alice", carol.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "restricted", decode[map[string]any](t, rec)["view"])

	// bob unfollows, twice
	rec = api.do(http.MethodDelete, "/api/profiles/alice/follow", bob.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodDelete, "/api/profiles/alice/follow", bob.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/profiles/alice", bob.Access, nil)
	assert.Equal(t, "restricted", decode[map[string]any](t, rec)["view"])
}

func TestWithdrawAndDeclineRoutes(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")
	bob := api.signup("bob")
	carol := api.signup("carol")

	api.do(http.MethodPost, "/api/profiles/alice/follow", bob.Access, nil)
	api.do(http.MethodPost, "/api/profiles/alice/follow", carol.Access, nil)

	rec := api.do(http.MethodDelete, "/api/profiles/alice/request", bob.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodDelete, "/api/me/requests/"+carol.ID, alice.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/me/requests", alice.Access, nil)
	assert.Empty(t, decode[[]model.ProfileSummary](t, rec))
}

func TestGraphErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantKind   string
	}{
		{"follow self", http.MethodPost, "/api/profiles/alice/follow", http.StatusUnprocessableEntity, "self_edge"},
		{"follow unknown", http.MethodPost, "/api/profiles/nobody/follow", http.StatusNotFound, "not_found"},
		{"unfollow self", http.MethodDelete, "/api/profiles/alice/follow", http.StatusUnprocessableEntity, "self_edge"},
		{"view unknown", http.MethodGet, "/api/profiles/nobody", http.StatusNotFound, "not_found"},
		{"accept never requested", http.MethodPost, "/api/me/requests/" + alice.ID + "/accept", http.StatusConflict, "request_not_found"},
		{"accept unknown requester", http.MethodPost, "/api/me/requests/ghost/accept", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, alice.Access, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantKind, errorKind(t, rec))
		})
	}
}

func TestUpdateMe(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")

	rec := api.do(http.MethodPatch, "/api/me", alice.Access, map[string]string{"bio": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decode[model.FullProfileView](t, rec).Bio)

	for _, body := range []map[string]any{
		{"followers": []string{"x"}},
		{"username": "mallory"},
		{"pendingRequests": []string{}},
	} {
		rec = api.do(http.MethodPatch, "/api/me", alice.Access, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", errorKind(t, rec))
	}

	rec = api.do(http.MethodGet, "/api/me", alice.Access, nil)
	me := decode[model.FullProfileView](t, rec)
	assert.Equal(t, "alice", me.Username)
	assert.Empty(t, me.Followers)
}

func TestAddPostRoute(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")

	rec := api.do(http.MethodPost, "/api/me/posts", alice.Access, map[string]string{"mediaRef": "media/1.jpg", "caption": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	post := decode[model.Post](t, rec)
	assert.NotEmpty(t, post.ID)

	rec = api.do(http.MethodPost, "/api/me/posts", alice.Access, map[string]string{"caption": "no media"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRoute(t *testing.T) {
	api := newTestAPI(t)
	carol := api.signup("carol")
	api.signup("alice")
	api.signup("bob")

	rec := api.do(http.MethodGet, "/api/search?q=ALI", carol.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]model.ProfileSummary](t, rec)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].Username)

	rec = api.do(http.MethodGet, "/api/search?q=", carol.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")

	t.Run("duplicate signup", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/auth/signup", "", map[string]string{
			"username": "alice", "email": "other@example.com", "password": "correct horse",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("login sets the token cookie", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "correct horse"})
		require.Equal(t, http.StatusOK, rec.Code)

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.TokenCookie {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)

		id, err := api.tokens.ValidateAccess(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, id)
	})

	t.Run("bad password", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong password"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("refresh", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": alice.Tokens.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, alice.ID, decode[service.AuthResult](t, rec).Profile.ID)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/api/me", alice.Tokens.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no token", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/api/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", errorKind(t, rec))
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/auth/logout", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestGitHubCallback(t *testing.T) {
	api := newTestAPI(t)

	// Start the flow to get a state cookie.
	rec := api.do(http.MethodGet, "/auth/github/login", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	stateCookies := rec.Result().Cookies()
	require.Len(t, stateCookies, 1)
	state := stateCookies[0].Value
	assert.Contains(t, rec.Header().Get("Location"), state)

	callback := func(query string, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+query, nil)
		if withCookie {
			req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
		}
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("state mismatch", func(t *testing.T) {
		rec := callback("code=abc&state=forged", true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		rec := callback("code=abc&state="+state, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exchange fails", func(t *testing.T) {
		api.github.user, api.github.err = nil, errors.New("github down")
		rec := callback("code=abc&state="+state, true)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		api.github.user, api.github.err = &auth.GitHubUser{ID: 42, Login: "octocat", Name: "The Octocat"}, nil
		rec := callback("code=abc&state="+state, true)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		var token string
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.TokenCookie {
				token = c.Value
			}
		}
		require.NotEmpty(t, token)

		me := api.do(http.MethodGet, "/api/me", token, nil)
		require.Equal(t, http.StatusOK, me.Code)
		assert.Equal(t, "octocat", decode[model.FullProfileView](t, me).Username)
	})
}
