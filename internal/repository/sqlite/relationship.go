package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
)

// RequestFollow adds a pending request unless the requester already follows
// the target.
//
// The "already a follower?" check is part of the INSERT itself (NOT EXISTS),
// and ON CONFLICT swallows a duplicate request, so a concurrent Accept or a
// second RequestFollow can never produce two rows or a pending-and-follower
// pair.
func (db *DB) RequestFollow(ctx context.Context, requesterID, targetID string) (model.RequestOutcome, error) {
	var outcome model.RequestOutcome

	err := db.withTx(ctx, "request follow", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pending_requests (profile_id, requester_id, created_at)
			 SELECT ?, ?, ?
			 WHERE NOT EXISTS (SELECT 1 FROM followers WHERE profile_id = ? AND follower_id = ?)
			 ON CONFLICT (profile_id, requester_id) DO NOTHING`,
			targetID, requesterID, time.Now().UTC(), targetID, requesterID,
		)
		if err != nil {
			if isConstraint(err, "FOREIGN KEY") {
				return apperror.NotFound("profile", requesterID)
			}
			return fmt.Errorf("inserting pending request: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}

		if n == 1 {
			outcome = model.OutcomeRequested
			return insertEvent(ctx, tx, model.EventFollowRequested, requesterID, targetID)
		}

		following, err := exists(ctx, tx, `SELECT 1 FROM followers WHERE profile_id = ? AND follower_id = ?`, targetID, requesterID)
		if err != nil {
			return err
		}
		if following {
			outcome = model.OutcomeAlreadyFollowing
		} else {
			outcome = model.OutcomeAlreadyRequested
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// WithdrawRequest removes requester's pending request on target, if any.
func (db *DB) WithdrawRequest(ctx context.Context, requesterID, targetID string) (bool, error) {
	return db.removePending(ctx, "withdraw request", model.EventFollowWithdrawn, targetID, requesterID)
}

// DeclineRequest removes requester's pending request on owner, if any.
func (db *DB) DeclineRequest(ctx context.Context, ownerID, requesterID string) (bool, error) {
	return db.removePending(ctx, "decline request", model.EventFollowDeclined, ownerID, requesterID)
}

func (db *DB) removePending(ctx context.Context, op string, typ model.EdgeEventType, ownerID, requesterID string) (bool, error) {
	var removed bool

	err := db.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM pending_requests WHERE profile_id = ? AND requester_id = ?`,
			ownerID, requesterID,
		)
		if err != nil {
			return fmt.Errorf("deleting pending request: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		removed = true
		return insertEvent(ctx, tx, typ, requesterID, ownerID)
	})
	return removed, err
}

// AcceptRequest turns a pending request into an edge.
//
// Three writes, one transaction:
//  1. delete the pending row (0 rows → RequestNotFound)
//  2. insert followers(accepter, requester)
//  3. insert following(requester, accepter)
//
// If 2 or 3 finds its row already there the graph was inconsistent before we
// started; the transaction rolls back and the caller gets an Invariant error.
// Two concurrent accepts of the same request serialise on the write lock, and
// the loser's step 1 deletes nothing.
func (db *DB) AcceptRequest(ctx context.Context, accepterID, requesterID string) error {
	return db.withTx(ctx, "accept request", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM pending_requests WHERE profile_id = ? AND requester_id = ?`,
			accepterID, requesterID,
		)
		if err != nil {
			return fmt.Errorf("deleting pending request: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.RequestNotFound(requesterID)
		}

		now := time.Now().UTC()

		res, err = tx.ExecContext(ctx,
			`INSERT INTO followers (profile_id, follower_id, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (profile_id, follower_id) DO NOTHING`,
			accepterID, requesterID, now,
		)
		if err != nil {
			return fmt.Errorf("inserting follower: %w", err)
		}
		if n, err = rowsAffected(res); err != nil {
			return err
		}
		if n == 0 {
			return apperror.Invariant(fmt.Sprintf("%s already in followers of %s", requesterID, accepterID))
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO following (profile_id, followee_id, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (profile_id, followee_id) DO NOTHING`,
			requesterID, accepterID, now,
		)
		if err != nil {
			return fmt.Errorf("inserting following: %w", err)
		}
		if n, err = rowsAffected(res); err != nil {
			return err
		}
		if n == 0 {
			return apperror.Invariant(fmt.Sprintf("%s already in following of %s", accepterID, requesterID))
		}

		return insertEvent(ctx, tx, model.EventFollowAccepted, requesterID, accepterID)
	})
}

// Unfollow deletes both halves of followerID -> targetID.
//
// Both deletes run; their row counts must agree. 0/0 is an idempotent no-op
// and 1/1 a removed edge. Anything else means only one half existed: the
// deletes are rolled back and the half edge stays for the audit to report.
func (db *DB) Unfollow(ctx context.Context, followerID, targetID string) (bool, error) {
	var removed bool

	err := db.withTx(ctx, "unfollow", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM followers WHERE profile_id = ? AND follower_id = ?`,
			targetID, followerID,
		)
		if err != nil {
			return fmt.Errorf("deleting follower: %w", err)
		}
		followerHalf, err := rowsAffected(res)
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`DELETE FROM following WHERE profile_id = ? AND followee_id = ?`,
			followerID, targetID,
		)
		if err != nil {
			return fmt.Errorf("deleting following: %w", err)
		}
		followingHalf, err := rowsAffected(res)
		if err != nil {
			return err
		}

		switch {
		case followerHalf == 0 && followingHalf == 0:
			return nil
		case followerHalf != followingHalf:
			return apperror.Invariant(fmt.Sprintf(
				"half edge %s -> %s (followers row: %t, following row: %t)",
				followerID, targetID, followerHalf == 1, followingHalf == 1,
			))
		}

		removed = true
		return insertEvent(ctx, tx, model.EventFollowRemoved, followerID, targetID)
	})
	return removed, err
}

// Audit reports every row that breaks a cross-reference invariant.
func (db *DB) Audit(ctx context.Context) ([]model.Violation, error) {
	checks := []struct {
		kind   string
		detail string
		query  string
	}{
		{
			kind:   model.ViolationMissingFollowing,
			detail: "follower row without matching following row",
			query: `SELECT f.profile_id, f.follower_id FROM followers f
				LEFT JOIN following g ON g.profile_id = f.follower_id AND g.followee_id = f.profile_id
				WHERE g.profile_id IS NULL ORDER BY f.rowid`,
		},
		{
			kind:   model.ViolationMissingFollower,
			detail: "following row without matching follower row",
			query: `SELECT g.followee_id, g.profile_id FROM following g
				LEFT JOIN followers f ON f.profile_id = g.followee_id AND f.follower_id = g.profile_id
				WHERE f.profile_id IS NULL ORDER BY g.rowid`,
		},
		{
			kind:   model.ViolationPendingFollower,
			detail: "id is both follower and pending requester",
			query: `SELECT p.profile_id, p.requester_id FROM pending_requests p
				JOIN followers f ON f.profile_id = p.profile_id AND f.follower_id = p.requester_id
				ORDER BY p.rowid`,
		},
		{
			kind:   model.ViolationSelfEdge,
			detail: "profile related to itself",
			query: `SELECT profile_id, follower_id FROM followers WHERE profile_id = follower_id
				UNION ALL SELECT profile_id, followee_id FROM following WHERE profile_id = followee_id
				UNION ALL SELECT profile_id, requester_id FROM pending_requests WHERE profile_id = requester_id`,
		},
	}

	violations := []model.Violation{}
	for _, c := range checks {
		found, err := db.scanViolations(ctx, c.kind, c.detail, c.query)
		if err != nil {
			return nil, storeErr(ctx, "audit graph", err)
		}
		violations = append(violations, found...)
	}
	return violations, nil
}

func (db *DB) scanViolations(ctx context.Context, kind, detail, query string) ([]model.Violation, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("running %s check: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Violation
	for rows.Next() {
		v := model.Violation{Kind: kind, Detail: detail}
		if err := rows.Scan(&v.ProfileID, &v.OtherID); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func exists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return true, nil
}
