// Package model defines the data structures used throughout the application.
package model

import "time"

// Account is the credential record behind a Profile. It shares the profile's ID.
//
// An account signs in either with username + password (PasswordHash set) or
// through GitHub (GitHubID set); both may be present.
//
// WHY Email string (not *string)?
// GitHub sign-ins can come without a public email. We use the empty string as
// the zero value and the repository stores it as NULL so the UNIQUE constraint
// only applies to real addresses.
type Account struct {
	ProfileID    string    `json:"profileId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
