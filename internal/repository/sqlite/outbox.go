package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/botnet/internal/model"
)

// FetchUnpublished returns up to limit unpublished outbox rows, oldest first.
func (db *DB) FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, topic, key, payload FROM outbox
		 WHERE published_at IS NULL ORDER BY rowid LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, storeErr(ctx, "fetch outbox", err)
	}
	defer rows.Close()

	var out []model.OutboxEntry
	for rows.Next() {
		var e model.OutboxEntry
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &e.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: scanning outbox row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "fetch outbox", err)
	}
	return out, nil
}

// MarkPublished stamps the row so it is not fetched again.
func (db *DB) MarkPublished(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE outbox SET published_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return storeErr(ctx, "mark outbox published", err)
	}
	return nil
}
