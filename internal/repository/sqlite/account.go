package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
)

// Create inserts a new profile together with its account.
//
// Both rows go into one transaction, so a profile never exists without the
// credentials that own it. IDs and timestamps are generated here and written
// back through the pointers.
func (db *DB) Create(ctx context.Context, profile *model.Profile, account *model.Account) error {
	now := time.Now().UTC()
	profile.ID = xid.New().String()
	profile.CreatedAt = now
	account.ProfileID = profile.ID
	account.CreatedAt = now

	return db.withTx(ctx, "create account", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, username, display_name, display_name_fold, bio, avatar_ref, contact_phone, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			profile.ID,
			profile.Username,
			profile.DisplayName,
			strings.ToLower(profile.DisplayName),
			profile.Bio,
			profile.AvatarRef,
			profile.ContactPhone,
			profile.CreatedAt,
		)
		if err != nil {
			if isConstraint(err, "profiles.username") {
				return apperror.Conflict("username", profile.Username)
			}
			return fmt.Errorf("inserting profile: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO accounts (profile_id, email, password_hash, github_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			account.ProfileID,
			nullString(account.Email),
			account.PasswordHash,
			nullInt(account.GitHubID),
			account.CreatedAt,
		)
		if err != nil {
			switch {
			case isConstraint(err, "accounts.email"):
				return apperror.Conflict("email", account.Email)
			case isConstraint(err, "accounts.github_id"):
				return apperror.Conflict("github account", fmt.Sprint(account.GitHubID))
			}
			return fmt.Errorf("inserting account: %w", err)
		}
		return nil
	})
}

// GetByProfileID returns apperror.ErrNotFound if the profile has no account.
func (db *DB) GetByProfileID(ctx context.Context, profileID string) (*model.Account, error) {
	return db.getAccount(ctx, `profile_id = ?`, profileID, profileID)
}

// GetByGitHubID looks up the account linked to a GitHub user.
func (db *DB) GetByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	return db.getAccount(ctx, `github_id = ?`, githubID, fmt.Sprint(githubID))
}

func (db *DB) getAccount(ctx context.Context, where string, arg any, key string) (*model.Account, error) {
	var (
		a        model.Account
		email    sql.NullString
		githubID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT profile_id, email, password_hash, github_id, created_at FROM accounts WHERE `+where,
		arg,
	).Scan(&a.ProfileID, &email, &a.PasswordHash, &githubID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("account", key)
	}
	if err != nil {
		return nil, storeErr(ctx, "get account", err)
	}
	a.Email = email.String
	a.GitHubID = githubID.Int64
	return &a, nil
}

// nullString stores "" as NULL so UNIQUE only applies to real values.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
