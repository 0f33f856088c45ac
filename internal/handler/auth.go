package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/service"
)

const stateCookie = "oauth_state"

// GitHubSignIn is the part of auth.GitHubProvider the handler needs.
type GitHubSignIn interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves sign-up, sign-in, token refresh, logout and the GitHub
// OAuth flow.
//
// Tokens go back both in the JSON body (for API clients) and as an HttpOnly
// cookie holding the access token (for browsers). RequireAuth accepts either.
type AuthHandler struct {
	accounts     *service.AccountService
	github       GitHubSignIn // nil when GitHub sign-in is not configured
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(accounts *service.AccountService, github GitHubSignIn, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		github:       github,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleSignup creates an account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"username": "alice", "email": "alice@example.com", "password": "..."}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.logFailure("signup", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Tokens)
	writeJSON(w, http.StatusCreated, res)
}

// HandleLogin signs in with username and password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logFailure("login", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, res)
}

// HandleRefresh trades a refresh token for a new pair.
//
// HTTP: POST /auth/refresh
// REQUEST BODY: {"refreshToken": "..."}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logFailure("refresh", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so this only removes the browser's copy. The access
// token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state goes into a short-lived HttpOnly cookie; the callback
// checks GitHub echoes the same value back (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user
//  3. Sign in to the linked profile, or create one
//  4. Set the token cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthenticated("GitHub authentication failed"))
		return
	}

	res, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logFailure("github callback", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Tokens)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// setTokenCookie stores the access token as an HttpOnly cookie.
// HttpOnly = JavaScript cannot read it. SameSite=Lax = not sent on
// cross-site POSTs. Secure comes from COOKIE_SECURE.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, tokens *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(auth.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// logFailure logs client mistakes at Info and everything else at Error.
func (h *AuthHandler) logFailure(op string, err error) {
	switch apperror.Kind(err) {
	case "validation_error", "unauthenticated", "conflict":
		h.logger.Info(op+" rejected", slog.String("error", err.Error()))
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
}
