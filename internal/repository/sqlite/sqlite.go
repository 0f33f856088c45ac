// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database that lives inside the binary as a single file.
// No separate server to run, and ":memory:" gives every test its own fresh store.
//
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so there is no
// CGo and cross-compilation just works.
//
// HOW THE FOLLOW GRAPH IS STORED:
// The profile record is an "arena" keyed by profile id. The relationship sets live
// in three side tables, one row per member:
//
//	followers(profile_id, follower_id)          -- who follows profile_id
//	following(profile_id, followee_id)          -- whom profile_id follows
//	pending_requests(profile_id, requester_id)  -- who asked to follow profile_id
//
// One edge "B follows A" is therefore TWO rows: followers(A, B) and following(B, A).
// The store never writes one without the other; both go into the same transaction.
//
// CONCURRENCY:
// Every mutating transaction starts with BEGIN IMMEDIATE (the _txlock DSN option),
// which takes SQLite's write lock up front. Writers are therefore serialised and
// every read-check-write inside a transaction sees a stable database. The check
// itself is folded into the write: a conditional INSERT or DELETE, and
// RowsAffected decides the outcome.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// busyTimeout bounds how long a connection waits for SQLite's write lock before
// the driver gives up with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/botnet.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new empty database, so the
	// pool must never open a second one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn adds the connection options modernc.org/sqlite applies to every
// connection it opens. Setting pragmas here instead of with one-off Exec calls
// means they hold for the whole pool, not just the first connection.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if dbPath != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return dbPath + "?" + q.Encode()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run on
// every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id                TEXT PRIMARY KEY,
			username          TEXT NOT NULL UNIQUE,
			display_name      TEXT NOT NULL DEFAULT '',
			display_name_fold TEXT NOT NULL DEFAULT '',
			bio               TEXT NOT NULL DEFAULT '',
			avatar_ref        TEXT NOT NULL DEFAULT '',
			contact_phone     TEXT NOT NULL DEFAULT '',
			created_at        DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			profile_id    TEXT PRIMARY KEY REFERENCES profiles(id),
			email         TEXT UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			created_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// The three relationship tables share one shape. No row may relate a
	// profile to itself.
	for _, t := range []struct{ table, member string }{
		{"followers", "follower_id"},
		{"following", "followee_id"},
		{"pending_requests", "requester_id"},
	} {
		_, err = db.conn.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				profile_id TEXT NOT NULL REFERENCES profiles(id),
				%[2]s      TEXT NOT NULL REFERENCES profiles(id),
				created_at DATETIME NOT NULL,
				PRIMARY KEY (profile_id, %[2]s),
				CHECK (profile_id <> %[2]s)
			);
			CREATE INDEX IF NOT EXISTS idx_%[1]s_member ON %[1]s(%[2]s);
		`, t.table, t.member))
		if err != nil {
			return fmt.Errorf("creating %s table: %w", t.table, err)
		}
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL REFERENCES profiles(id),
			media_ref  TEXT NOT NULL,
			caption    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_posts_profile_id ON posts(profile_id);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	// topic holds the event type; the relay decides the broker topic.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id           TEXT PRIMARY KEY,
			topic        TEXT NOT NULL,
			key          TEXT NOT NULL,
			payload      BLOB NOT NULL,
			created_at   DATETIME NOT NULL,
			published_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox(published_at);
	`)
	if err != nil {
		return fmt.Errorf("creating outbox table: %w", err)
	}

	return nil
}

// querier is the part of *sql.DB and *sql.Tx the read helpers need, so the
// same code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside one IMMEDIATE transaction. Any error from fn rolls the
// whole transaction back, so a cancelled or failed operation never leaves half
// an edge behind.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(ctx, op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storeErr(ctx, op, err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr(ctx, op, err)
	}
	return nil
}

// storeErr classifies an error coming out of the driver.
//
//   - *apperror.AppError values pass through untouched
//   - timeouts, cancellation and lock contention become apperror.Transient
//   - anything else is wrapped with the operation name
func storeErr(ctx context.Context, op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if ctx.Err() != nil {
		return apperror.Transient(op, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isBusy(err) {
		return apperror.Transient(op, err)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// isBusy reports SQLite lock contention. The low byte of an extended result
// code is its primary code.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return true
	}
	return false
}

// isConstraint reports a constraint failure whose message mentions detail,
// e.g. "profiles.username" or "FOREIGN KEY".
func isConstraint(err error, detail string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), detail)
}

// rowsAffected unwraps sql.Result for the conditional writes.
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// insertEvent writes one edge event to the outbox inside tx.
func insertEvent(ctx context.Context, tx *sql.Tx, typ model.EdgeEventType, actorID, targetID string) error {
	ev := model.EdgeEvent{
		ID:         xid.New().String(),
		Type:       typ,
		ActorID:    actorID,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", typ, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id, topic, key, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, string(typ), targetID, payload, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("writing %s event: %w", typ, err)
	}
	return nil
}
