// internal/domain/offline/repository.go
package offline

import "context"

// Repository is the per-tour staging area for cycles recorded offline.
// Enqueue does not deduplicate by cycle number.
type Repository interface {
	Enqueue(ctx context.Context, entry Entry) error
	// Drain returns a snapshot of the tour's entries in replay order without removing them.
	Drain(ctx context.Context, tourID string) ([]Entry, error)
	Clear(ctx context.Context, tourID string) error
	// PendingTours lists tours with at least one queued entry.
	PendingTours(ctx context.Context) ([]string, error)
}
