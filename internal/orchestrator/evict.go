package orchestrator

import (
	"context"
	"sort"

	"orchd/internal/adapter"
	"orchd/internal/registry"
	"orchd/pkg/types"
)

// makeRoom evicts resident models until requiredMB fits, excluding the model
// being loaded and backends that cannot be programmatically unloaded.
// Victims are ordered least-important-first: highest priority number goes
// first (lower numbers are higher priority to keep resident), ties broken by
// oldest use. Partial eviction is kept on failure; freed memory is never
// harmful.
func (o *Orchestrator) makeRoom(ctx context.Context, requiredMB int, excludeID string) bool {
	for {
		o.mu.Lock()
		if o.budget.CanAccommodate(requiredMB) {
			o.mu.Unlock()
			return true
		}
		victim := o.pickVictimLocked(excludeID)
		if victim == nil {
			o.mu.Unlock()
			o.log.Warn().Int("required_mb", requiredMB).Msg("eviction exhausted, budget still insufficient")
			return false
		}
		m := victim.Model
		o.mu.Unlock()

		a, ok := o.adapterFor(m.ID)
		res := adapter.Result{Status: types.StatusAvailable}
		if ok {
			res = a.Unload(ctx, m)
		}

		o.mu.Lock()
		o.budget.MarkUnloaded(m.ID)
		if res.Status == types.StatusAvailable {
			victim.Status = types.StatusAvailable
		} else {
			victim.Status, _ = failureState(m.ID, res)
		}
		o.commitGauges()
		o.mu.Unlock()

		metricEvictionsTotal.Inc()
		o.publish(EventEvict, m.ID, map[string]any{"freed_mb": m.EstVRAMMB, "for": excludeID})
		o.log.Info().Str("model", m.ID).Int("freed_mb", m.EstVRAMMB).Str("for", excludeID).Msg("evicted")
	}
}

// pickVictimLocked selects the next eviction victim. Caller holds o.mu.
// Candidates are online residents; models mid-load keep their reservation.
func (o *Orchestrator) pickVictimLocked(excludeID string) *registry.Entry {
	var candidates []*registry.Entry
	for _, e := range o.reg.All() {
		if e.Model.ID == excludeID || !e.Model.Evictable() {
			continue
		}
		if e.Status != types.StatusOnline || !o.budget.IsResident(e.Model.ID) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Model.Priority != candidates[j].Model.Priority {
			return candidates[i].Model.Priority > candidates[j].Model.Priority
		}
		return candidates[i].LastUsed.Before(candidates[j].LastUsed)
	})
	return candidates[0]
}
