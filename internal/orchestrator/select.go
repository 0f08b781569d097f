package orchestrator

import (
	"context"
	"sort"

	"orchd/internal/registry"
	"orchd/pkg/types"
)

// SelectModel picks the best model for a task. Preference order: an online
// candidate (no load triggered), then a loadable candidate for which the
// budget holds (evicting first if needed), then any candidate at all as a
// degraded fallback. Selection counts as use for recency purposes.
func (o *Orchestrator) SelectModel(ctx context.Context, taskType string, contextSize int) (types.ModelInfo, error) {
	o.mu.Lock()
	candidates := o.candidatesLocked(taskType, contextSize)

	// Online first: serve from what is already resident.
	for _, e := range candidates {
		if e.Status == types.StatusOnline {
			o.touchLocked(e)
			info := e.Info()
			o.mu.Unlock()
			o.store.RecordUse(info.ID, o.now())
			return info, nil
		}
	}
	var loadable []string
	for _, e := range candidates {
		if e.Status == types.StatusAvailable || e.Status == types.StatusUnknown {
			loadable = append(loadable, e.Model.ID)
		}
	}
	o.mu.Unlock()

	for _, id := range loadable {
		info, err := o.LoadModel(ctx, id)
		if err == nil && info.Status == types.StatusOnline {
			return info, nil
		}
		o.log.Warn().Str("model", id).Err(err).Str("task", taskType).Msg("select: candidate failed to load, trying next")
	}

	// Degraded fallback: any capability match, then any known model.
	o.mu.Lock()
	defer o.mu.Unlock()
	candidates = o.candidatesLocked(taskType, contextSize)
	if len(candidates) == 0 {
		for _, e := range o.reg.All() {
			if e.Status != types.StatusMisconfigured {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return types.ModelInfo{}, ErrUnknownModel("no model for task " + taskType)
	}
	info := candidates[0].Info()
	o.publish(EventSelectDegraded, info.ID, map[string]any{"task": taskType, "status": string(info.Status)})
	o.log.Warn().Str("model", info.ID).Str("task", taskType).Str("status", string(info.Status)).Msg("select: degraded selection")
	return info, nil
}

// candidatesLocked filters by capability and context length and sorts by
// (priority ascending, most recently used first). Caller holds o.mu.
func (o *Orchestrator) candidatesLocked(taskType string, contextSize int) []*registry.Entry {
	var out []*registry.Entry
	for _, e := range o.reg.All() {
		if e.Status == types.StatusMisconfigured {
			continue
		}
		if taskType != "" && !e.Model.HasCapability(taskType) {
			continue
		}
		if contextSize > 0 && e.Model.ContextLen > 0 && e.Model.ContextLen < contextSize {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Model.Priority != out[j].Model.Priority {
			return out[i].Model.Priority < out[j].Model.Priority
		}
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out
}
