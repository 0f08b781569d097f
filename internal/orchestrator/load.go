package orchestrator

import (
	"context"

	"orchd/internal/adapter"
	"orchd/pkg/types"
)

// LoadModel makes a model resident. Budget is reserved optimistically before
// the adapter call and rolled back on failure, so two concurrent loads can
// never jointly overshoot the budget.
func (o *Orchestrator) LoadModel(ctx context.Context, id string) (types.ModelInfo, error) {
	o.mu.Lock()
	e, ok := o.reg.Get(id)
	if !ok {
		o.mu.Unlock()
		return types.ModelInfo{}, ErrUnknownModel(id)
	}
	if e.Status == types.StatusMisconfigured {
		o.mu.Unlock()
		return types.ModelInfo{}, ErrMisconfigured(id)
	}
	if e.Model.Serving == types.ServingHeartbeat {
		info := e.Info()
		o.mu.Unlock()
		return info, ErrLifecycleUnsupported(id)
	}
	if e.Status == types.StatusOnline {
		o.touchLocked(e)
		o.budget.MarkLoaded(id, e.Model.EstVRAMMB)
		info := e.Info()
		o.mu.Unlock()
		o.store.RecordUse(id, o.now())
		return info, nil
	}
	if e.Status == types.StatusLoading {
		// A concurrent load owns this model; report its in-flight state.
		info := e.Info()
		o.mu.Unlock()
		return info, nil
	}
	m := e.Model
	cost := m.EstVRAMMB
	fits := o.budget.CanAccommodate(cost)
	o.mu.Unlock()

	if !fits {
		if !o.makeRoom(ctx, cost, id) {
			metricLoadFailuresTotal.WithLabelValues("budget").Inc()
			return o.infoFor(id), ErrBudgetExceeded(id, cost)
		}
	}

	a, ok := o.adapterFor(id)
	if !ok {
		return o.infoFor(id), ErrMisconfigured(id)
	}

	// Reserve and mark loading before the (possibly long) adapter call.
	o.mu.Lock()
	if !o.budget.CanAccommodate(cost) && !o.budget.IsResident(id) {
		// Another load raced us into the freed space.
		o.mu.Unlock()
		metricLoadFailuresTotal.WithLabelValues("budget").Inc()
		return o.infoFor(id), ErrBudgetExceeded(id, cost)
	}
	o.budget.MarkLoaded(id, cost)
	e.Status = types.StatusLoading
	o.inflight[id] = true
	o.touchLocked(e)
	o.commitGauges()
	o.mu.Unlock()
	o.publish(EventLoadStart, id, map[string]any{"cost_mb": cost})
	o.log.Info().Str("model", id).Int("cost_mb", cost).Msg("load start")

	res := a.Load(ctx, m)
	for attempt := 0; res.Status == types.StatusOffline && attempt < o.loadRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		res = a.Load(ctx, m)
	}

	o.mu.Lock()
	delete(o.inflight, id)
	var err error
	switch res.Status {
	case types.StatusOnline:
		e.Status = types.StatusOnline
		o.touchLocked(e)
		metricLoadsTotal.Inc()
	case types.StatusLoading:
		// Still warming up; budget stays reserved. With the in-flight mark
		// cleared the health sweeper polls this entry and completes or fails
		// the transition.
		e.Status = types.StatusLoading
	default:
		o.budget.MarkUnloaded(id)
		e.Status, err = failureState(id, res)
		metricLoadFailuresTotal.WithLabelValues(string(res.Status)).Inc()
	}
	o.commitGauges()
	info := e.Info()
	o.mu.Unlock()

	if err != nil {
		o.publish(EventLoadFail, id, map[string]any{"error": err.Error()})
		o.log.Warn().Str("model", id).Err(err).Msg("load failed")
		return info, err
	}
	o.publish(EventLoadReady, id, map[string]any{"status": string(info.Status)})
	o.log.Info().Str("model", id).Str("status", string(info.Status)).Msg("load done")
	o.store.RecordLoad(id)
	o.store.RecordUse(id, o.now())
	return info, nil
}

// UnloadModel releases a model. Unloading an already non-resident model is a
// no-op success; failures still release the budget reservation, since an
// unreachable backend must not keep inflating Used().
func (o *Orchestrator) UnloadModel(ctx context.Context, id string) (types.ModelInfo, error) {
	o.mu.Lock()
	e, ok := o.reg.Get(id)
	if !ok {
		o.mu.Unlock()
		return types.ModelInfo{}, ErrUnknownModel(id)
	}
	if e.Model.Serving == types.ServingHeartbeat {
		info := e.Info()
		o.mu.Unlock()
		return info, ErrLifecycleUnsupported(id)
	}
	if !o.budget.IsResident(id) && e.Status != types.StatusOnline {
		info := e.Info()
		o.mu.Unlock()
		return info, nil
	}
	m := e.Model
	o.mu.Unlock()

	a, ok := o.adapterFor(id)
	if !ok {
		return o.infoFor(id), ErrMisconfigured(id)
	}
	res := a.Unload(ctx, m)

	o.mu.Lock()
	o.budget.MarkUnloaded(id)
	var err error
	switch res.Status {
	case types.StatusAvailable:
		e.Status = types.StatusAvailable
	default:
		e.Status, err = failureState(id, res)
	}
	o.commitGauges()
	info := e.Info()
	o.mu.Unlock()

	metricUnloadsTotal.Inc()
	o.publish(EventUnload, id, map[string]any{"status": string(info.Status)})
	return info, err
}

// failureState maps an adapter failure to the runtime state and the
// taxonomy error surfaced to callers.
func failureState(id string, res adapter.Result) (types.ModelStatus, error) {
	switch res.Status {
	case types.StatusOffline:
		return types.StatusOffline, ErrBackendUnreachable(id, res.Err)
	case types.StatusAvailable:
		return types.StatusAvailable, nil
	default:
		return types.StatusError, ErrBackendProtocol(id, res.Err)
	}
}

// infoFor returns the current projection of a model, zero if unknown.
func (o *Orchestrator) infoFor(id string) types.ModelInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.reg.Get(id); ok {
		return e.Info()
	}
	return types.ModelInfo{}
}
