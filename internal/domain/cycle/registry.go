// internal/domain/cycle/registry.go
package cycle

import (
	"fmt"
	"inspection_cycle_sync/internal/domain/checklist"
)

// NextNumber returns max(known)+1, or 1 when nothing is known yet.
func NextNumber(known []int) int {
	highest := 0
	for _, n := range known {
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// KnownNumbers is the union of confirmed record numbers and pending queue numbers.
func KnownNumbers(records []Record, pending []int) []int {
	seen := make(map[int]struct{}, len(records)+len(pending))
	out := make([]int, 0, len(records)+len(pending))
	add := func(n int) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, r := range records {
		add(r.CycleNumber)
	}
	for _, n := range pending {
		add(n)
	}
	return out
}

// Draft is the in-progress state of the active cycle.
type Draft struct {
	CycleNumber int
	Start       StartData
	Items       []checklist.Item
}

// HasStart reports whether start-of-cycle data has been captured.
func (d Draft) HasStart() bool {
	return d.Start.Validate() == nil
}

// Grade sets one item's status, matched by group and label.
func (d *Draft) Grade(key checklist.Key, status checklist.Status, remarks string) error {
	for i := range d.Items {
		if d.Items[i].Key() == key {
			d.Items[i].Status = status
			d.Items[i].Remarks = remarks
			if status != checklist.StatusNotOkay {
				d.Items[i].Remarks = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownItem, key)
}

// Apply grades every item of graded onto the draft.
func (d *Draft) Apply(graded []checklist.Item) error {
	for _, item := range graded {
		if err := d.Grade(item.Key(), item.Status, item.Remarks); err != nil {
			return err
		}
	}
	return nil
}

func (d Draft) clone() Draft {
	items := make([]checklist.Item, len(d.Items))
	copy(items, d.Items)
	d.Items = items
	return d
}

// Registry tracks the active cycle number of one tour and its draft.
// The number is never stored on its own; Sync derives it from the known set.
type Registry struct {
	variant checklist.Variant
	draft   Draft
}

func NewRegistry(v checklist.Variant) *Registry {
	return &Registry{variant: v}
}

// Sync recomputes the active cycle from known numbers. When the number moves,
// the draft is reset: all items unset and start data cleared. It reports
// whether a reset happened.
func (r *Registry) Sync(known []int) (int, bool) {
	next := NextNumber(known)
	if next == r.draft.CycleNumber {
		return next, false
	}
	r.draft = Draft{CycleNumber: next, Items: r.variant.NewItems()}
	return next, true
}

// Current is the active cycle number, 0 before the first Sync.
func (r *Registry) Current() int {
	return r.draft.CycleNumber
}

// Draft returns a copy of the active draft.
func (r *Registry) Draft() Draft {
	return r.draft.clone()
}

// SetStart records start data on the active draft.
func (r *Registry) SetStart(start StartData) {
	r.draft.Start = start
}

// Save replaces the active draft's checklist, rejecting drafts of other cycles.
func (r *Registry) Save(d Draft) error {
	if d.CycleNumber != r.draft.CycleNumber {
		return fmt.Errorf("%w: draft cycle %d, active cycle %d", ErrStaleDraft, d.CycleNumber, r.draft.CycleNumber)
	}
	r.draft = d.clone()
	return nil
}
