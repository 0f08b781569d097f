// Package budget tracks resident models against a fixed VRAM budget.
//
// The tracker is pure accounting: no I/O, no locking. The orchestrator owns
// the mutation boundary and guards all access with its own mutex.
package budget

import "orchd/pkg/types"

// Tracker maps resident model ids to their declared memory cost in MB and
// caches the running total for O(1) reads.
type Tracker struct {
	totalMB  int
	usedMB   int
	resident map[string]int
}

// New constructs a tracker. A total of 0 or less means no memory constraint
// (e.g. CPU-only hosts); CanAccommodate is then always true.
func New(totalMB int) *Tracker {
	return &Tracker{
		totalMB:  totalMB,
		resident: make(map[string]int),
	}
}

// CanAccommodate reports whether costMB fits in the remaining budget.
func (t *Tracker) CanAccommodate(costMB int) bool {
	if t.totalMB <= 0 {
		return true
	}
	return t.RemainingMB() >= costMB
}

// MarkLoaded records a model as resident. Idempotent: marking an already
// resident model does not change the used total.
func (t *Tracker) MarkLoaded(id string, costMB int) {
	if _, ok := t.resident[id]; ok {
		return
	}
	if costMB < 0 {
		costMB = 0
	}
	t.resident[id] = costMB
	t.usedMB += costMB
}

// MarkUnloaded removes a model from the resident set. No-op if absent.
func (t *Tracker) MarkUnloaded(id string) {
	cost, ok := t.resident[id]
	if !ok {
		return
	}
	delete(t.resident, id)
	t.usedMB -= cost
	if t.usedMB < 0 {
		t.usedMB = 0
	}
}

// IsResident reports whether id currently counts against the budget.
func (t *Tracker) IsResident(id string) bool {
	_, ok := t.resident[id]
	return ok
}

// Cost returns the declared cost of a resident model, 0 if absent.
func (t *Tracker) Cost(id string) int {
	return t.resident[id]
}

func (t *Tracker) UsedMB() int  { return t.usedMB }
func (t *Tracker) TotalMB() int { return t.totalMB }

// RemainingMB returns total - used, never negative. Unlimited trackers
// report 0 remaining; use CanAccommodate for admission checks.
func (t *Tracker) RemainingMB() int {
	if t.totalMB <= 0 {
		return 0
	}
	r := t.totalMB - t.usedMB
	if r < 0 {
		return 0
	}
	return r
}

// Usage returns a wire-ready snapshot.
func (t *Tracker) Usage() types.VRAMUsage {
	return types.VRAMUsage{
		TotalMB:     t.totalMB,
		UsedMB:      t.usedMB,
		RemainingMB: t.RemainingMB(),
	}
}
