package adapter

import (
	"context"
	"sync"
	"time"

	"orchd/pkg/types"
)

// circuit tracks consecutive transport failures for one remote backend so
// health checks against a backend known to be down can be skipped entirely.
type circuit struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	fails     int
	lastFail  time.Time
}

func (c *circuit) open(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fails >= c.threshold && now.Sub(c.lastFail) < c.cooldown
}

func (c *circuit) record(reachable bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reachable {
		c.fails = 0
		return
	}
	c.fails++
	c.lastFail = now
}

// remoteAdapter serves remote RPC backends: the local-process command shape
// with a shorter load budget and a circuit-breaker guard. Circuits are keyed
// by backend address so models sharing a service share failure state.
type remoteAdapter struct {
	rpc *rpcAdapter

	mu       sync.Mutex
	circuits map[string]*circuit
}

func newRemoteAdapter(opts Options) *remoteAdapter {
	return &remoteAdapter{
		rpc:      newRPCAdapter(opts, opts.RemoteLoadTimeout),
		circuits: make(map[string]*circuit),
	}
}

func (a *remoteAdapter) circuitFor(addr string) *circuit {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.circuits[addr]
	if !ok {
		c = &circuit{threshold: a.rpc.opts.CircuitThreshold, cooldown: a.rpc.opts.CircuitCooldown}
		a.circuits[addr] = c
	}
	return c
}

// guarded runs call unless the backend's circuit is open, and feeds the
// outcome back into the circuit. Only transport-level failures (StatusOffline)
// count against the breaker; protocol errors mean the backend is reachable.
func (a *remoteAdapter) guarded(m types.Model, call func() Result) Result {
	c := a.circuitFor(m.Address)
	now := time.Now()
	if c.open(now) {
		return Result{Status: types.StatusOffline, Err: ErrCircuitOpen}
	}
	res := call()
	c.record(res.Status != types.StatusOffline, time.Now())
	return res
}

func (a *remoteAdapter) Load(ctx context.Context, m types.Model) Result {
	return a.guarded(m, func() Result { return a.rpc.Load(ctx, m) })
}

func (a *remoteAdapter) Unload(ctx context.Context, m types.Model) Result {
	return a.guarded(m, func() Result { return a.rpc.Unload(ctx, m) })
}

func (a *remoteAdapter) CheckHealth(ctx context.Context, m types.Model) Result {
	return a.guarded(m, func() Result { return a.rpc.CheckHealth(ctx, m) })
}
