package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the two endpoints Exchange talks to.
func fakeGitHub(t *testing.T, userStatus int, user GitHubUser) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userStatus)
		_ = json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(srv *httptest.Server) *GitHubProvider {
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestGitHubExchange(t *testing.T) {
	srv := fakeGitHub(t, http.StatusOK, GitHubUser{ID: 77, Login: "Octocat", Name: "The Octocat"})
	p := newTestGitHubProvider(srv)

	user, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, int64(77), user.ID)
	assert.Equal(t, "Octocat", user.Login)
	assert.Equal(t, "The Octocat", user.Name)
}

func TestGitHubExchange_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		user   GitHubUser
	}{
		{"api error status", http.StatusBadGateway, GitHubUser{ID: 1}},
		{"zero user id", http.StatusOK, GitHubUser{Login: "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestGitHubProvider(fakeGitHub(t, tt.status, tt.user))
			_, err := p.Exchange(context.Background(), "the-code")
			assert.Error(t, err)
		})
	}
}

func TestGitHubAuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost/cb", u.Query().Get("redirect_uri"))
}
