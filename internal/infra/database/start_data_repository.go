// internal/infra/database/start_data_repository.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"inspection_cycle_sync/internal/domain/cycle"
)

var ErrStartDataNotFound = fmt.Errorf("start data not found")

// KVStartDataRepository stores start data under "<namespace>:start:<tourID>:<cycle>".
type KVStartDataRepository struct {
	kv        KV
	namespace string
}

func NewKVStartDataRepository(kv KV, namespace string) *KVStartDataRepository {
	return &KVStartDataRepository{kv: kv, namespace: namespace}
}

func (r *KVStartDataRepository) key(tourID string, cycleNumber int) string {
	return fmt.Sprintf("%s:start:%s:%d", r.namespace, tourID, cycleNumber)
}

func (r *KVStartDataRepository) SaveStart(ctx context.Context, tourID string, cycleNumber int, start cycle.StartData) error {
	raw, err := json.Marshal(start)
	if err != nil {
		return fmt.Errorf("error encoding start data: %w", err)
	}
	if err := r.kv.Put(ctx, r.key(tourID, cycleNumber), raw); err != nil {
		return fmt.Errorf("error saving start data for tour %s cycle %d: %w", tourID, cycleNumber, err)
	}
	return nil
}

func (r *KVStartDataRepository) GetStart(ctx context.Context, tourID string, cycleNumber int) (*cycle.StartData, error) {
	raw, err := r.kv.Get(ctx, r.key(tourID, cycleNumber))
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, ErrStartDataNotFound
		}
		return nil, fmt.Errorf("error getting start data for tour %s cycle %d: %w", tourID, cycleNumber, err)
	}
	start := &cycle.StartData{}
	if err := json.Unmarshal(raw, start); err != nil {
		return nil, fmt.Errorf("error decoding start data for tour %s cycle %d: %w", tourID, cycleNumber, err)
	}
	return start, nil
}

func (r *KVStartDataRepository) DeleteStart(ctx context.Context, tourID string, cycleNumbers ...int) error {
	keys := make([]string, len(cycleNumbers))
	for i, n := range cycleNumbers {
		keys[i] = r.key(tourID, n)
	}
	return r.kv.DeleteKeys(ctx, keys)
}
