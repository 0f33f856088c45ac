package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = auth.MaxPasswordBytes
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,30}$`)

// errBadCredentials is shared by every Login failure so the response does not
// reveal whether the username exists.
var errBadCredentials = apperror.Unauthenticated("invalid username or password")

// AccountService handles sign-up, sign-in and token refresh.
//
//	AuthHandler (HTTP) → AccountService → AccountRepository (DB)
//	                                    ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sets cookies or reads requests; that is the handler's job.
type AccountService struct {
	accounts  repository.AccountRepository
	profiles  repository.ProfileRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	timeout   time.Duration
	logger    *slog.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	profiles repository.ProfileRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	timeout time.Duration,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		profiles:  profiles,
		tokens:    tokens,
		passwords: passwords,
		timeout:   timeout,
		logger:    logger,
	}
}

// AuthResult bundles the signed-in profile and its tokens so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	Profile model.ProfileSummary `json:"profile"`
	Tokens  *auth.TokenPair      `json:"tokens"`
}

// Signup creates a profile with a password account and signs it in.
func (s *AccountService) Signup(ctx context.Context, username, email, password string) (result *AuthResult, err error) {
	defer observe("signup", time.Now(), &err)

	username = normalizeUsername(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"username must be 3-30 characters of a-z, 0-9, '.' or '_'")
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "email must be a valid address")
	}
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d to %d bytes", MinPasswordLength, MaxPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	profile := &model.Profile{Username: username, DisplayName: username}
	account := &model.Account{Email: email, PasswordHash: hash}
	if err := s.accounts.Create(ctx, profile, account); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	s.logger.Info("profile created",
		slog.String("profileID", profile.ID),
		slog.String("username", profile.Username),
	)
	return s.issue(profile)
}

// Login checks username + password. Unknown usernames, GitHub-only accounts
// and wrong passwords all fail the same way and take the same time.
func (s *AccountService) Login(ctx context.Context, username, password string) (result *AuthResult, err error) {
	defer observe("login", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := s.profiles.GetByUsername(ctx, normalizeUsername(username))
	if errors.Is(err, apperror.ErrNotFound) {
		_ = s.passwords.VerifyDummy(password)
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	account, err := s.accounts.GetByProfileID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if account.PasswordHash == "" {
		_ = s.passwords.VerifyDummy(password)
		return nil, errBadCredentials
	}

	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Debug("login failed", slog.String("profileID", profile.ID))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	s.logger.Info("profile signed in", slog.String("profileID", profile.ID))
	return s.issue(profile)
}

// Refresh trades a valid refresh token for a new token pair. The profile must
// still exist.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	defer observe("refresh", time.Now(), &err)

	profileID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid or expired refresh token")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := s.profiles.GetByID(ctx, profileID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthenticated("invalid or expired refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return s.issue(profile)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback after the handler
// exchanged the code for ghUser.
//
// A known GitHub id signs in to its linked profile. An unknown one creates a
// new profile named after the GitHub login; if that username is taken the
// result is a Conflict and the user has to sign up with a password instead.
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (result *AuthResult, err error) {
	defer observe("github_login", time.Now(), &err)

	if ghUser == nil || ghUser.ID == 0 {
		return nil, apperror.Unauthenticated("github did not return a user")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.accounts.GetByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		profile, err := s.profiles.GetByID(ctx, account.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("github login: %w", err)
		}
		s.logger.Info("profile signed in via GitHub",
			slog.String("profileID", profile.ID),
			slog.Int64("githubID", ghUser.ID),
		)
		return s.issue(profile)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("github login: %w", err)
	}

	username := githubUsername(ghUser.Login)
	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("GitHub login %q cannot be used as a username", ghUser.Login))
	}

	displayName := strings.TrimSpace(ghUser.Name)
	if displayName == "" {
		displayName = ghUser.Login
	}
	if len([]rune(displayName)) > MaxDisplayNameLength {
		displayName = string([]rune(displayName)[:MaxDisplayNameLength])
	}

	profile := &model.Profile{
		Username:    username,
		DisplayName: displayName,
		AvatarRef:   ghUser.AvatarURL,
	}
	account = &model.Account{
		Email:    strings.ToLower(strings.TrimSpace(ghUser.Email)),
		GitHubID: ghUser.ID,
	}
	if err := s.accounts.Create(ctx, profile, account); err != nil {
		return nil, fmt.Errorf("github login: %w", err)
	}

	s.logger.Info("profile created via GitHub",
		slog.String("profileID", profile.ID),
		slog.String("username", profile.Username),
		slog.Int64("githubID", ghUser.ID),
	)
	return s.issue(profile)
}

func (s *AccountService) issue(p *model.Profile) (*AuthResult, error) {
	tokens, err := s.tokens.IssuePair(p.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing tokens for %s: %w", p.ID, err)
	}
	return &AuthResult{Profile: p.Summary(), Tokens: tokens}, nil
}

// githubUsername maps a GitHub login onto our username alphabet. GitHub
// allows '-', we don't.
func githubUsername(login string) string {
	return strings.ReplaceAll(normalizeUsername(login), "-", "_")
}
