// internal/infra/database/postgres_kv.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq" // For pq.Array
)

// NewPostgresKV returns a KV over PostgreSQL, for kiosks sharing one store.
func NewPostgresKV(ctx context.Context, db *sql.DB) (*KVStore, error) {
	s := &KVStore{
		db: db,
		q: kvQueries{
			create: `CREATE TABLE IF NOT EXISTS kv_store (
                       key        TEXT PRIMARY KEY,
                       value      TEXT NOT NULL,
                       updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
                     )`,
			get: `SELECT value FROM kv_store WHERE key = $1`,
			put: `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
                  ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			delete: `DELETE FROM kv_store WHERE key = $1`,
			keys:   `SELECT key FROM kv_store WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		},
	}
	s.deleteKeys = func(ctx context.Context, keys []string) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ANY($1::text[])`, pq.Array(keys)); err != nil {
			return fmt.Errorf("error deleting %d keys: %w", len(keys), err)
		}
		return nil
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
