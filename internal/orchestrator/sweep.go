package orchestrator

import (
	"context"
	"time"

	"orchd/pkg/types"
)

func (o *Orchestrator) runHealthSweeper() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.SweepHealth(context.Background())
		}
	}
}

// SweepHealth polls every adapter once and reconciles each model's runtime
// state and budget residency with the backend's reported reality. Per-model
// failures are logged and never abort the sweep.
func (o *Orchestrator) SweepHealth(ctx context.Context) {
	o.mu.Lock()
	type item struct {
		id       string
		model    types.Model
		status   types.ModelStatus
		inflight bool
	}
	items := make([]item, 0, o.reg.Len())
	for _, e := range o.reg.All() {
		items = append(items, item{
			id:       e.Model.ID,
			model:    e.Model,
			status:   e.Status,
			inflight: o.inflight[e.Model.ID],
		})
	}
	o.mu.Unlock()

	for _, it := range items {
		select {
		case <-o.stopCh:
			return
		default:
		}
		// Misconfigured is terminal until configuration changes; models with
		// a load call in flight belong to that load. A committed loading
		// entry (backend answered "loading") is polled so a slow warm-up
		// eventually resolves to online, error or offline.
		if it.status == types.StatusMisconfigured || it.inflight {
			continue
		}
		a, ok := o.adapterFor(it.id)
		if !ok {
			continue
		}
		res := a.CheckHealth(ctx, it.model)
		metricHealthChecksTotal.WithLabelValues(string(res.Status)).Inc()

		o.mu.Lock()
		e, ok := o.reg.Get(it.id)
		if !ok || o.inflight[it.id] {
			// Raced with a new load; the load path commits its own result.
			o.mu.Unlock()
			continue
		}
		prev := e.Status
		e.Status = res.Status
		e.LastHealthCheck = o.now()
		// Reconcile: residency follows observed status, so an externally
		// unloaded model stops counting and an externally loaded one starts.
		if res.Status.Resident() {
			o.budget.MarkLoaded(it.id, it.model.EstVRAMMB)
		} else {
			o.budget.MarkUnloaded(it.id)
		}
		o.commitGauges()
		o.mu.Unlock()

		if prev != res.Status {
			o.publish(EventHealthTransition, it.id, map[string]any{
				"from": string(prev), "to": string(res.Status),
			})
			ev := o.log.Info()
			if res.Err != nil {
				ev = o.log.Warn().Err(res.Err)
			}
			ev.Str("model", it.id).Str("from", string(prev)).Str("to", string(res.Status)).Msg("health transition")
		}
	}
}
