package orchestrator

import (
	"context"
	"time"

	"orchd/pkg/types"
)

func (o *Orchestrator) runIdleSweeper() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.memoryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.SweepIdle(context.Background())
		}
	}
}

// SweepIdle unloads online models unused past their idle timeout. Only
// backends supporting programmatic unload participate.
func (o *Orchestrator) SweepIdle(ctx context.Context) {
	now := o.now()

	o.mu.Lock()
	var victims []types.Model
	for _, e := range o.reg.All() {
		if e.Status != types.StatusOnline || !e.Model.Evictable() {
			continue
		}
		timeout := e.Model.IdleTimeout(o.defaultIdle)
		if timeout <= 0 {
			continue
		}
		if now.Sub(e.LastUsed) > timeout {
			victims = append(victims, e.Model)
		}
	}
	o.mu.Unlock()

	for _, m := range victims {
		select {
		case <-o.stopCh:
			return
		default:
		}
		a, ok := o.adapterFor(m.ID)
		if !ok {
			continue
		}
		res := a.Unload(ctx, m)

		o.mu.Lock()
		o.budget.MarkUnloaded(m.ID)
		if e, ok := o.reg.Get(m.ID); ok {
			if res.Status == types.StatusAvailable {
				e.Status = types.StatusAvailable
			} else {
				e.Status, _ = failureState(m.ID, res)
			}
		}
		o.commitGauges()
		o.mu.Unlock()

		metricIdleUnloadsTotal.Inc()
		o.publish(EventIdleUnload, m.ID, map[string]any{"freed_mb": m.EstVRAMMB})
		o.log.Info().Str("model", m.ID).Int("freed_mb", m.EstVRAMMB).Msg("idle unload")
	}
}
