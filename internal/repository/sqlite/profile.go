package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
)

const profileColumns = `id, username, display_name, bio, avatar_ref, contact_phone, created_at`

// GetByID loads a profile with its relationship sets and posts.
// Returns apperror.ErrNotFound if no profile has that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := loadProfile(ctx, db.conn, `id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("profile", id)
	}
	if err != nil {
		return nil, storeErr(ctx, "get profile", err)
	}
	return p, nil
}

// GetByUsername is GetByID keyed by the (lowercase) username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.Profile, error) {
	p, err := loadProfile(ctx, db.conn, `username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ProfileNotFound(username)
	}
	if err != nil {
		return nil, storeErr(ctx, "get profile", err)
	}
	return p, nil
}

// loadProfile reads the scalar row, then each set in storage order.
//
// The reads are separate statements outside a transaction: a writer may commit
// between them. Callers only use the result to render a view, and every write
// re-checks its preconditions in its own transaction, so the skew is harmless.
func loadProfile(ctx context.Context, q querier, where string, arg any) (*model.Profile, error) {
	var p model.Profile
	err := q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE `+where, arg,
	).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Bio, &p.AvatarRef, &p.ContactPhone, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	if p.Followers, err = loadSet(ctx, q, "followers", "follower_id", p.ID); err != nil {
		return nil, err
	}
	if p.Following, err = loadSet(ctx, q, "following", "followee_id", p.ID); err != nil {
		return nil, err
	}
	if p.PendingRequests, err = loadSet(ctx, q, "pending_requests", "requester_id", p.ID); err != nil {
		return nil, err
	}
	if p.Posts, err = loadPosts(ctx, q, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

// loadSet returns the member ids of one relationship set in insertion order.
// table and member come from the fixed schema, never from user input.
func loadSet(ctx context.Context, q querier, table, member, profileID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE profile_id = ? ORDER BY rowid`, member, table),
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s of %s: %w", table, profileID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadPosts(ctx context.Context, q querier, profileID string) ([]model.Post, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, media_ref, caption, created_at FROM posts WHERE profile_id = ? ORDER BY rowid`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing posts of %s: %w", profileID, err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var post model.Post
		if err := rows.Scan(&post.ID, &post.MediaRef, &post.Caption, &post.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// Summaries resolves ids to public cards in one query.
//
// The ids travel as a single JSON array and json_each turns it into a table,
// so there is no placeholder list to build and no limit on the number of ids.
func (db *DB) Summaries(ctx context.Context, ids []string) ([]model.ProfileSummary, error) {
	if len(ids) == 0 {
		return []model.ProfileSummary{}, nil
	}
	arr, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding ids: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, display_name, avatar_ref FROM profiles
		 WHERE id IN (SELECT value FROM json_each(?))`,
		string(arr),
	)
	if err != nil {
		return nil, storeErr(ctx, "profile summaries", err)
	}
	defer rows.Close()

	byID := make(map[string]model.ProfileSummary, len(ids))
	for rows.Next() {
		var s model.ProfileSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.DisplayName, &s.AvatarRef); err != nil {
			return nil, fmt.Errorf("sqlite: scanning summary row: %w", err)
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "profile summaries", err)
	}

	// Keep the caller's order (the set's storage order).
	out := make([]model.ProfileSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Search matches the lowercased needle against username and the case-folded
// display name. instr() is a plain substring test, so '%' and '_' in the
// needle carry no special meaning the way they would with LIKE.
func (db *DB) Search(ctx context.Context, needle string) ([]model.ProfileSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, display_name, avatar_ref FROM profiles
		 WHERE instr(username, ?) > 0 OR instr(display_name_fold, ?) > 0
		 ORDER BY rowid`,
		needle, needle,
	)
	if err != nil {
		return nil, storeErr(ctx, "search profiles", err)
	}
	defer rows.Close()

	out := []model.ProfileSummary{}
	for rows.Next() {
		var s model.ProfileSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.DisplayName, &s.AvatarRef); err != nil {
			return nil, fmt.Errorf("sqlite: scanning search row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "search profiles", err)
	}
	return out, nil
}

// Update applies the set fields of upd in one statement.
//
// A nil pointer is bound as NULL and COALESCE keeps the current value, so
// unset fields are left alone without a read-modify-write.
func (db *DB) Update(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	var fold *string
	if upd.DisplayName != nil {
		f := strings.ToLower(*upd.DisplayName)
		fold = &f
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET
			display_name      = COALESCE(?, display_name),
			display_name_fold = COALESCE(?, display_name_fold),
			bio               = COALESCE(?, bio),
			avatar_ref        = COALESCE(?, avatar_ref),
			contact_phone     = COALESCE(?, contact_phone)
		 WHERE id = ?`,
		nullable(upd.DisplayName), nullable(fold), nullable(upd.Bio),
		nullable(upd.AvatarRef), nullable(upd.ContactPhone), id,
	)
	if err != nil {
		return nil, storeErr(ctx, "update profile", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return nil, storeErr(ctx, "update profile", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("profile", id)
	}

	return db.GetByID(ctx, id)
}

// AddPost appends a post. The INSERT ... SELECT only fires when the profile
// exists, which turns a missing owner into NotFound instead of an FK error.
func (db *DB) AddPost(ctx context.Context, profileID string, post *model.Post) error {
	post.ID = xid.New().String()
	post.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, profile_id, media_ref, caption, created_at)
		 SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM profiles WHERE id = ?)`,
		post.ID, profileID, post.MediaRef, post.Caption, post.CreatedAt, profileID,
	)
	if err != nil {
		return storeErr(ctx, "add post", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return storeErr(ctx, "add post", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", profileID)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
