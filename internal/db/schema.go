package db

import (
	"context"
	"fmt"
)

// Schema is the forum table. Sort keys use the "C" collation so ORDER BY
// matches byte order on every backend.
const Schema = `
CREATE TABLE IF NOT EXISTS forum_items (
	pk     TEXT NOT NULL,
	sk     TEXT COLLATE "C" NOT NULL,
	gsi1pk TEXT,
	gsi1sk TEXT COLLATE "C",
	data   JSONB NOT NULL,
	PRIMARY KEY (pk, sk)
);

CREATE INDEX IF NOT EXISTS forum_items_gsi1
	ON forum_items (gsi1pk, gsi1sk DESC)
	WHERE gsi1pk IS NOT NULL;
`

// EnsureSchema creates the forum table and its index if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.logger.Info("forum schema ready")
	return nil
}
