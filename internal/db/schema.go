package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	author_id  TEXT NOT NULL,
	content    VARCHAR(1024) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS posts_author_id_idx ON posts (author_id);
CREATE INDEX IF NOT EXISTS posts_feed_order_idx ON posts (created_at DESC, id DESC);
`

// EnsureSchema creates the posts table and its indexes if missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, schema)
	return err
}
