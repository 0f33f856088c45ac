// Package auth issues and verifies the credentials that turn an HTTP request
// into a verified profile id.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Signup/login (or the GitHub callback) yields a TokenPair
//  2. The access token travels as "Authorization: Bearer <jwt>" or in the
//     HttpOnly "token" cookie
//  3. RequireAuth validates it and puts the profile id in the request context
//  4. When it expires (15 min) the client trades the refresh token (30 days)
//     for a new pair at /auth/refresh
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<profileID>","kind":"access","exp":...,"iss":"botnet"}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// ACCESS VS REFRESH:
// The two kinds are signed with different secrets AND carry a "kind" claim.
// Either check alone stops a refresh token from being replayed as an access
// token; together they also survive a misconfiguration that reuses one secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "botnet"

	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// TokenKind is stored in the "kind" claim.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenService handles JWT creation and validation for both token kinds.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
}

// NewTokenService creates a TokenService. Both secrets must be at least 16
// characters. Example: JWT_ACCESS_SECRET=$(openssl rand -hex 32)
func NewTokenService(accessSecret, refreshSecret string) (*TokenService, error) {
	if len(accessSecret) < 16 {
		return nil, errors.New("auth: JWT access secret must be at least 16 characters")
	}
	if len(refreshSecret) < 16 {
		return nil, errors.New("auth: JWT refresh secret must be at least 16 characters")
	}
	return &TokenService{accessSecret: []byte(accessSecret), refreshSecret: []byte(refreshSecret)}, nil
}

// TokenPair is what signup, login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"` // of the access token
}

// claims is the JWT payload. "sub" carries the profile id.
type claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// IssuePair creates a fresh access + refresh token for profileID.
func (s *TokenService) IssuePair(profileID string) (*TokenPair, error) {
	now := time.Now()

	access, err := s.generate(KindAccess, profileID, now, AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.generate(KindRefresh, profileID, now, RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(AccessTokenTTL),
	}, nil
}

func (s *TokenService) secret(kind TokenKind) []byte {
	if kind == KindRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

// generate signs one token. d may be negative in tests to get an already
// expired token.
func (s *TokenService) generate(kind TokenKind, profileID string, now time.Time, d time.Duration) (string, error) {
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret(kind))
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}
	return signed, nil
}

// ValidateAccess returns the profile id of a valid access token.
func (s *TokenService) ValidateAccess(tokenStr string) (string, error) {
	return s.validate(KindAccess, tokenStr)
}

// ValidateRefresh returns the profile id of a valid refresh token.
func (s *TokenService) ValidateRefresh(tokenStr string) (string, error) {
	return s.validate(KindRefresh, tokenStr)
}

// validate checks signature, algorithm (HS256 only, which rules out "none"),
// issuer, expiry and kind.
func (s *TokenService) validate(kind TokenKind, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret(kind), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Kind != kind {
		return "", fmt.Errorf("auth: expected %s token, got %q", kind, c.Kind)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
