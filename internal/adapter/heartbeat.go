package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// Heartbeats is the adapter for passive-heartbeat services. Health is derived
// from the age of the last qualifying heartbeat, fed out-of-band through
// Observe rather than by a request/response poll. There is no load/unload
// action for these backends.
type Heartbeats struct {
	mu   sync.RWMutex
	last map[string]time.Time
	opts Options
	log  zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewHeartbeats(opts Options) *Heartbeats {
	return &Heartbeats{
		last: make(map[string]time.Time),
		opts: opts,
		log:  opts.Logger.With().Str("adapter", "heartbeat").Logger(),
		now:  time.Now,
	}
}

// Observe records a qualifying heartbeat for the given model id.
func (h *Heartbeats) Observe(modelID string) {
	h.ObserveAt(modelID, h.now())
}

// ObserveAt records a heartbeat with an explicit timestamp.
func (h *Heartbeats) ObserveAt(modelID string, t time.Time) {
	h.mu.Lock()
	h.last[modelID] = t
	h.mu.Unlock()
	h.log.Debug().Str("model", modelID).Time("at", t).Msg("heartbeat observed")
}

func (h *Heartbeats) health(m types.Model) Result {
	h.mu.RLock()
	last, ok := h.last[m.ID]
	h.mu.RUnlock()
	if !ok {
		return Result{Status: types.StatusOffline, Err: fmt.Errorf("no heartbeat observed for %s", m.ID)}
	}
	window := m.HeartbeatTimeout(h.opts.HeartbeatTimeout)
	if age := h.now().Sub(last); age > window {
		return Result{Status: types.StatusOffline, Err: fmt.Errorf("last heartbeat for %s is %s old (window %s)", m.ID, age.Round(time.Second), window)}
	}
	return Result{Status: types.StatusOnline}
}

func (h *Heartbeats) Load(_ context.Context, m types.Model) Result {
	res := h.health(m)
	res.Err = ErrLifecycleUnsupported
	return res
}

func (h *Heartbeats) Unload(_ context.Context, m types.Model) Result {
	res := h.health(m)
	res.Err = ErrLifecycleUnsupported
	return res
}

func (h *Heartbeats) CheckHealth(_ context.Context, m types.Model) Result {
	return h.health(m)
}
