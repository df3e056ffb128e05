// internal/domain/offline/entry.go
package offline

import (
	"inspection_cycle_sync/internal/domain/cycle"
	"sort"
	"time"
)

// Entry is a cycle completed without connectivity, waiting for replay.
// Its cycle number is fixed at creation, so replay order does not affect correctness.
type Entry struct {
	ID          string         `json:"id"`
	TourID      string         `json:"tourId"`
	CycleNumber int            `json:"cycleNumber"`
	Records     []cycle.Record `json:"records"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
}

// SortByEnqueued orders entries for replay, keeping insertion order on ties.
func SortByEnqueued(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})
}

// CycleNumbers lists the cycle numbers held by entries.
func CycleNumbers(entries []Entry) []int {
	nums := make([]int, 0, len(entries))
	for _, e := range entries {
		nums = append(nums, e.CycleNumber)
	}
	return nums
}

// Records flattens the records of entries in replay order.
func Records(entries []Entry) []cycle.Record {
	var out []cycle.Record
	for _, e := range entries {
		out = append(out, e.Records...)
	}
	return out
}
