package orchestrator

import (
	"orchd/pkg/types"
)

// ModelStatus returns the projection for one model plus its residency.
func (o *Orchestrator) ModelStatus(id string) (types.ModelInfo, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.reg.Get(id)
	if !ok {
		return types.ModelInfo{}, false, ErrUnknownModel(id)
	}
	return e.Info(), o.budget.IsResident(id), nil
}

// AllModels returns every model's projection and the budget snapshot.
func (o *Orchestrator) AllModels() (map[string]types.ModelInfo, types.VRAMUsage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]types.ModelInfo, o.reg.Len())
	for _, e := range o.reg.All() {
		out[e.Model.ID] = e.Info()
	}
	return out, o.budget.Usage()
}

// Usage returns the budget snapshot alone.
func (o *Orchestrator) Usage() types.VRAMUsage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.budget.Usage()
}

// ApplyTuning hot-reloads mutable descriptor fields from a fresh catalog.
func (o *Orchestrator) ApplyTuning(models []types.Model) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reg.ApplyTuning(models, o.log)
}
