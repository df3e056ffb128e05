// internal/infra/database/offline_queue_repository.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"inspection_cycle_sync/internal/domain/offline"
	"strings"

	"github.com/google/uuid"
)

// KVOfflineQueue keeps one JSON array of entries per tour under
// "<namespace>:offline:<tourID>". Mutations are read-modify-write with a single writer.
type KVOfflineQueue struct {
	kv        KV
	namespace string
}

func NewKVOfflineQueue(kv KV, namespace string) *KVOfflineQueue {
	return &KVOfflineQueue{kv: kv, namespace: namespace}
}

func (q *KVOfflineQueue) prefix() string {
	return q.namespace + ":offline:"
}

func (q *KVOfflineQueue) key(tourID string) string {
	return q.prefix() + tourID
}

func (q *KVOfflineQueue) load(ctx context.Context, tourID string) ([]offline.Entry, error) {
	raw, err := q.kv.Get(ctx, q.key(tourID))
	if err != nil {
		if err == ErrKeyNotFound {
			return []offline.Entry{}, nil
		}
		return nil, fmt.Errorf("error reading offline queue for tour %s: %w", tourID, err)
	}
	entries := make([]offline.Entry, 0)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("error decoding offline queue for tour %s: %w", tourID, err)
	}
	return entries, nil
}

// Enqueue appends entry, assigning an ID when it has none.
func (q *KVOfflineQueue) Enqueue(ctx context.Context, entry offline.Entry) error {
	entries, err := q.load(ctx, entry.TourID)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entries = append(entries, entry)

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("error encoding offline queue for tour %s: %w", entry.TourID, err)
	}
	if err := q.kv.Put(ctx, q.key(entry.TourID), raw); err != nil {
		return fmt.Errorf("error writing offline queue for tour %s: %w", entry.TourID, err)
	}
	return nil
}

func (q *KVOfflineQueue) Drain(ctx context.Context, tourID string) ([]offline.Entry, error) {
	entries, err := q.load(ctx, tourID)
	if err != nil {
		return nil, err
	}
	offline.SortByEnqueued(entries)
	return entries, nil
}

func (q *KVOfflineQueue) Clear(ctx context.Context, tourID string) error {
	if err := q.kv.Delete(ctx, q.key(tourID)); err != nil {
		return fmt.Errorf("error clearing offline queue for tour %s: %w", tourID, err)
	}
	return nil
}

func (q *KVOfflineQueue) PendingTours(ctx context.Context) ([]string, error) {
	keys, err := q.kv.Keys(ctx, q.prefix())
	if err != nil {
		return nil, err
	}
	tours := make([]string, 0, len(keys))
	for _, k := range keys {
		tours = append(tours, strings.TrimPrefix(k, q.prefix()))
	}
	return tours, nil
}
