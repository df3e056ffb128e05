// internal/infra/database/sqlite_kv.go
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// NewSQLiteKV returns a KV over the device-local SQLite file.
func NewSQLiteKV(ctx context.Context, db *sql.DB) (*KVStore, error) {
	s := &KVStore{
		db: db,
		q: kvQueries{
			create: `CREATE TABLE IF NOT EXISTS kv_store (
                       key        TEXT PRIMARY KEY,
                       value      TEXT NOT NULL,
                       updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
                     )`,
			get: `SELECT value FROM kv_store WHERE key = ?`,
			put: `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
                  ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			delete: `DELETE FROM kv_store WHERE key = ?`,
			keys:   `SELECT key FROM kv_store WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		},
	}
	s.deleteKeys = func(ctx context.Context, keys []string) error {
		txn, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for bulk delete: %w", err)
		}
		defer txn.Rollback() // Rollback if not committed

		stmt, err := txn.PrepareContext(ctx, `DELETE FROM kv_store WHERE key = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement for bulk delete: %w", err)
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, k); err != nil {
				return fmt.Errorf("error deleting key %s: %w", k, err)
			}
		}
		return txn.Commit()
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
