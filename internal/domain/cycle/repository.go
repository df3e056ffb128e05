// internal/domain/cycle/repository.go
package cycle

import "context"

// StartDataRepository persists start-of-cycle metadata per tour and cycle number
// so a draft survives restarts.
type StartDataRepository interface {
	SaveStart(ctx context.Context, tourID string, cycleNumber int, start StartData) error
	// GetStart returns database.ErrStartDataNotFound when nothing was saved.
	GetStart(ctx context.Context, tourID string, cycleNumber int) (*StartData, error)
	DeleteStart(ctx context.Context, tourID string, cycleNumbers ...int) error
}
