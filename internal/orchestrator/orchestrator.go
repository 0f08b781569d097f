// Package orchestrator owns all mutable model-lifecycle state: the registry,
// the budget tracker, and the runtime statuses. Every mutation path — the
// control plane, the health sweeper, the idle sweeper — goes through one
// mutex, and no caller holds that mutex across backend I/O: the pattern is
// lock, snapshot, unlock, call the adapter, relock, commit.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orchd/internal/adapter"
	"orchd/internal/budget"
	"orchd/internal/registry"
	"orchd/internal/store"
	"orchd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHealthInterval    = 30 * time.Second
	defaultMemoryInterval    = 60 * time.Second
	defaultIdleUnloadTimeout = 5 * time.Minute
	defaultLoadRetries       = 1
)

// Config encapsulates all tunables and collaborators for construction.
type Config struct {
	Registry   *registry.Registry
	Budget     *budget.Tracker
	Adapters   map[string]adapter.Adapter
	Heartbeats *adapter.Heartbeats
	Store      *store.UsageStore
	Publisher  EventPublisher
	Logger     zerolog.Logger

	HealthInterval     time.Duration
	MemoryInterval     time.Duration
	DefaultIdleTimeout time.Duration
	// LoadRetries is the number of extra Load attempts after an unreachable
	// backend; retries live here, never in the adapters.
	LoadRetries int
}

type Orchestrator struct {
	mu     sync.Mutex
	reg    *registry.Registry
	budget *budget.Tracker

	adapters map[string]adapter.Adapter
	hb       *adapter.Heartbeats
	store    *store.UsageStore
	pub      EventPublisher
	log      zerolog.Logger

	healthInterval time.Duration
	memoryInterval time.Duration
	defaultIdle    time.Duration
	loadRetries    int

	// inflight marks models whose LoadModel call is between reservation and
	// commit; the health sweeper leaves those to the load path and polls any
	// other loading entry so a slow warm-up still resolves.
	inflight map[string]bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.MemoryInterval <= 0 {
		cfg.MemoryInterval = defaultMemoryInterval
	}
	if cfg.DefaultIdleTimeout == 0 {
		cfg.DefaultIdleTimeout = defaultIdleUnloadTimeout
	}
	if cfg.LoadRetries < 0 {
		cfg.LoadRetries = 0
	} else if cfg.LoadRetries == 0 {
		cfg.LoadRetries = defaultLoadRetries
	}
	o := &Orchestrator{
		reg:            cfg.Registry,
		budget:         cfg.Budget,
		adapters:       cfg.Adapters,
		hb:             cfg.Heartbeats,
		store:          cfg.Store,
		pub:            cfg.Publisher,
		log:            cfg.Logger.With().Str("component", "orchestrator").Logger(),
		healthInterval: cfg.HealthInterval,
		memoryInterval: cfg.MemoryInterval,
		defaultIdle:    cfg.DefaultIdleTimeout,
		loadRetries:    cfg.LoadRetries,
		inflight:       make(map[string]bool),
		stopCh:         make(chan struct{}),
		now:            time.Now,
	}
	// Restore persisted recency so restart does not reset LRU ordering.
	if seen, err := o.store.LastUsed(); err != nil {
		o.log.Warn().Err(err).Msg("restore usage metadata")
	} else if len(seen) > 0 {
		o.reg.SeedLastUsed(seen)
	}
	metricBudgetMB.Set(float64(o.budget.TotalMB()))
	return o
}

// Start launches the health and idle sweepers.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	o.wg.Add(2)
	go o.runHealthSweeper()
	go o.runIdleSweeper()
	o.log.Info().
		Dur("health_interval", o.healthInterval).
		Dur("memory_interval", o.memoryInterval).
		Msg("sweepers started")
}

// Stop signals both sweepers and waits for them; each exits within one
// polling interval.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	o.mu.Unlock()

	close(o.stopCh)
	o.wg.Wait()
	o.log.Info().Msg("sweepers stopped")
}

// Ready reports whether the orchestrator is serving. Used by /readyz.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started && o.reg.Len() > 0
}

// ObserveHeartbeat feeds an out-of-band heartbeat for a heartbeat-served
// model into its adapter.
func (o *Orchestrator) ObserveHeartbeat(modelID string) error {
	o.mu.Lock()
	e, ok := o.reg.Get(modelID)
	if !ok {
		o.mu.Unlock()
		return ErrUnknownModel(modelID)
	}
	if e.Model.Serving != types.ServingHeartbeat {
		o.mu.Unlock()
		return ErrLifecycleUnsupported(modelID)
	}
	o.mu.Unlock()
	if o.hb != nil {
		o.hb.Observe(modelID)
	}
	return nil
}

func (o *Orchestrator) adapterFor(id string) (adapter.Adapter, bool) {
	a, ok := o.adapters[id]
	return a, ok
}

// touchLocked refreshes recency for a model. Caller holds o.mu; the store
// write happens later, outside the lock.
func (o *Orchestrator) touchLocked(e *registry.Entry) {
	e.LastUsed = o.now()
}

// commitGauges refreshes the budget gauges. Caller holds o.mu.
func (o *Orchestrator) commitGauges() {
	metricVRAMUsedMB.Set(float64(o.budget.UsedMB()))
}

// withTimeout derives a bounded context for adapter I/O so a hung backend
// cannot outlive the per-call budget even if the adapter misbehaves.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
