package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orchd/internal/adapter"
	"orchd/internal/budget"
	"orchd/internal/registry"
	"orchd/pkg/types"
)

// fakeAdapter returns scripted results and records call order.
type fakeAdapter struct {
	mu        sync.Mutex
	loadRes   adapter.Result
	unloadRes adapter.Result
	healthRes adapter.Result
	loads     []string
	unloads   []string
	healths   []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		loadRes:   adapter.Result{Status: types.StatusOnline},
		unloadRes: adapter.Result{Status: types.StatusAvailable},
		healthRes: adapter.Result{Status: types.StatusOnline},
	}
}

func (f *fakeAdapter) Load(_ context.Context, m types.Model) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, m.ID)
	return f.loadRes
}

func (f *fakeAdapter) Unload(_ context.Context, m types.Model) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads = append(f.unloads, m.ID)
	return f.unloadRes
}

func (f *fakeAdapter) CheckHealth(_ context.Context, m types.Model) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healths = append(f.healths, m.ID)
	return f.healthRes
}

func (f *fakeAdapter) loadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

func (f *fakeAdapter) unloadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unloads...)
}

// testOrch wires an orchestrator over fakes with a fixed clock.
type testOrch struct {
	o     *Orchestrator
	fakes map[string]*fakeAdapter
	pub   *MemoryPublisher
	clock time.Time
}

func newTestOrch(models []types.Model, budgetMB int) *testOrch {
	fakes := make(map[string]*fakeAdapter, len(models))
	adapters := make(map[string]adapter.Adapter, len(models))
	for _, m := range models {
		f := newFakeAdapter()
		fakes[m.ID] = f
		adapters[m.ID] = f
	}
	pub := NewMemoryPublisher()
	o := New(Config{
		Registry:  registry.New(models, zerolog.Nop()),
		Budget:    budget.New(budgetMB),
		Adapters:  adapters,
		Publisher: pub,
		Logger:    zerolog.Nop(),
	})
	to := &testOrch{o: o, fakes: fakes, pub: pub, clock: time.Unix(1_700_000_000, 0)}
	o.now = func() time.Time { return to.clock }
	return to
}

// setState force-sets runtime state, marking residency when appropriate.
func (to *testOrch) setState(id string, status types.ModelStatus, lastUsed time.Time) {
	to.o.mu.Lock()
	defer to.o.mu.Unlock()
	e, ok := to.o.reg.Get(id)
	if !ok {
		panic("unknown test model " + id)
	}
	e.Status = status
	e.LastUsed = lastUsed
	if status.Resident() {
		to.o.budget.MarkLoaded(id, e.Model.EstVRAMMB)
	} else {
		to.o.budget.MarkUnloaded(id)
	}
}

// setInflight marks a model as owned by an in-progress load call.
func (to *testOrch) setInflight(id string) {
	to.o.mu.Lock()
	defer to.o.mu.Unlock()
	to.o.inflight[id] = true
}

func (to *testOrch) status(id string) types.ModelStatus {
	to.o.mu.Lock()
	defer to.o.mu.Unlock()
	e, _ := to.o.reg.Get(id)
	return e.Status
}

func (to *testOrch) resident(id string) bool {
	to.o.mu.Lock()
	defer to.o.mu.Unlock()
	return to.o.budget.IsResident(id)
}

func rpcModel(id string, priority, costMB int) types.Model {
	return types.Model{
		ID:        id,
		Serving:   types.ServingLocalProcess,
		Address:   "127.0.0.1:7000",
		EstVRAMMB: costMB,
		Priority:  priority,
	}
}
