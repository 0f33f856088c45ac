package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/auth"
)

// =========================================================================
// Signup / Login / Refresh
// =========================================================================

func TestSignup(t *testing.T) {
	f := newFixture(t)

	res, err := f.accounts.Signup(context.Background(), " Alice ", "Alice@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Profile.Username)
	assert.NotEmpty(t, res.Profile.ID)

	id, err := f.tokens.ValidateAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Profile.ID, id)

	account, err := f.store.GetByProfileID(context.Background(), res.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.NotEqual(t, "correct horse", account.PasswordHash)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		field    string
	}{
		{"username too short", "al", "a@example.com", "correct horse", "username"},
		{"username bad chars", "al-ice", "a@example.com", "correct horse", "username"},
		{"email without @", "alice", "alice.example.com", "correct horse", "email"},
		{"password too short", "alice", "a@example.com", "short", "password"},
		{"password too long", "alice", "a@example.com", string(make([]byte, 73)), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.Signup(context.Background(), tt.username, tt.email, tt.password)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestSignup_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Signup(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.accounts.Signup(ctx, "ALICE", "other@example.com", "correct horse")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.accounts.Signup(ctx, "alice2", "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice")

	res, err := f.accounts.Login(ctx, "Alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, alice, res.Profile.ID)

	// Wrong password and unknown user are indistinguishable.
	_, errWrong := f.accounts.Login(ctx, "alice", "battery staple")
	_, errUnknown := f.accounts.Login(ctx, "nobody", "correct horse")
	require.ErrorIs(t, errWrong, apperror.ErrUnauthenticated)
	require.ErrorIs(t, errUnknown, apperror.ErrUnauthenticated)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.accounts.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "octocat"})
	require.NoError(t, err)

	_, err = f.accounts.Login(ctx, "octocat", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signup, err := f.accounts.Signup(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	res, err := f.accounts.Refresh(ctx, signup.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, signup.Profile.ID, res.Profile.ID)

	_, err = f.accounts.Refresh(ctx, signup.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated, "an access token is not a refresh token")

	_, err = f.accounts.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestRefresh_ProfileGone(t *testing.T) {
	f := newFixture(t)

	pair, err := f.tokens.IssuePair("deleted-profile")
	require.NoError(t, err)

	_, err = f.accounts.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

// =========================================================================
// LoginOrRegisterGitHub
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	f := newFixture(t)

	res, err := f.accounts.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:        42,
		Login:     "Octo-Cat",
		Name:      "The Octocat",
		Email:     "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	})
	require.NoError(t, err)
	assert.Equal(t, "octo_cat", res.Profile.Username)
	assert.Equal(t, "The Octocat", res.Profile.DisplayName)
	assert.Equal(t, "https://avatars.githubusercontent.com/u/42", res.Profile.AvatarRef)
	assert.NotEmpty(t, res.Tokens.AccessToken)
}

func TestLoginOrRegisterGitHub_ReturningUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.accounts.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "octocat"})
	require.NoError(t, err)

	// A renamed GitHub login still signs in to the same profile.
	second, err := f.accounts.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, first.Profile.ID, second.Profile.ID)
	assert.Equal(t, "octocat", second.Profile.Username)
}

func TestLoginOrRegisterGitHub_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "octocat")

	_, err := f.accounts.LoginOrRegisterGitHub(ctx, nil)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)

	_, err = f.accounts.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 1, Login: "octocat"})
	assert.ErrorIs(t, err, apperror.ErrConflict, "username already taken by a password account")

	_, err = f.accounts.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 2, Login: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
