// internal/infra/database/kv.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

var ErrKeyNotFound = fmt.Errorf("key not found")

// KV is the string-keyed persistent store behind the offline queue and start data.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeleteKeys(ctx context.Context, keys []string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type kvQueries struct {
	create string
	get    string
	put    string
	delete string
	keys   string
}

// KVStore implements KV over a single kv_store table.
type KVStore struct {
	db         *sql.DB
	q          kvQueries
	deleteKeys func(ctx context.Context, keys []string) error
}

func (s *KVStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.q.create); err != nil {
		return fmt.Errorf("error creating kv_store table: %w", err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.q.get, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.q.put, key, string(value)); err != nil {
		return fmt.Errorf("error putting key %s: %w", key, err)
	}
	return nil
}

// Delete is idempotent: deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.q.delete, key); err != nil {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) DeleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.deleteKeys(ctx, keys)
}

func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.keys, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("error listing keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("error scanning key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key rows: %w", err)
	}
	return keys, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
