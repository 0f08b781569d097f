package adapter

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// modelHandle is a live in-process model. The real llama.cpp implementation
// is compiled behind the 'llama' build tag; default builds use a file-backed
// stub handle that performs no inference-capable allocation.
type modelHandle interface {
	Alive() bool
	Close() error
}

// InProc manages file-backed models loaded directly into this process.
// Load and unload mutate the handle map; there is no network round trip.
type InProc struct {
	mu      sync.Mutex
	handles map[string]modelHandle
	opts    Options
	log     zerolog.Logger
}

func NewInProc(opts Options) *InProc {
	return &InProc{
		handles: make(map[string]modelHandle),
		opts:    opts,
		log:     opts.Logger.With().Str("adapter", "inproc").Logger(),
	}
}

func (a *InProc) Load(ctx context.Context, m types.Model) Result {
	a.mu.Lock()
	if h, ok := a.handles[m.ID]; ok && h.Alive() {
		a.mu.Unlock()
		return Result{Status: types.StatusOnline}
	}
	a.mu.Unlock()

	if _, err := os.Stat(m.Path); err != nil {
		return Result{Status: types.StatusError, Err: fmt.Errorf("model file: %w", err)}
	}
	// Opening the handle can take a while for large files; done outside the
	// adapter lock so unrelated models stay serviceable.
	h, err := openHandle(m.Path, a.opts.InProcCtxSize, a.opts.InProcThreads)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Status: types.StatusError, Err: ctx.Err()}
		}
		return Result{Status: types.StatusError, Err: fmt.Errorf("open model: %w", err)}
	}

	a.mu.Lock()
	if old, ok := a.handles[m.ID]; ok {
		_ = old.Close()
	}
	a.handles[m.ID] = h
	a.mu.Unlock()
	return Result{Status: types.StatusOnline}
}

func (a *InProc) Unload(_ context.Context, m types.Model) Result {
	a.mu.Lock()
	h, ok := a.handles[m.ID]
	delete(a.handles, m.ID)
	a.mu.Unlock()
	if ok {
		if err := h.Close(); err != nil {
			return Result{Status: types.StatusAvailable, Err: fmt.Errorf("close handle: %w", err)}
		}
	}
	return Result{Status: types.StatusAvailable}
}

func (a *InProc) CheckHealth(_ context.Context, m types.Model) Result {
	a.mu.Lock()
	h, ok := a.handles[m.ID]
	a.mu.Unlock()
	if !ok {
		return Result{Status: types.StatusAvailable}
	}
	if !h.Alive() {
		return Result{Status: types.StatusError, Err: fmt.Errorf("handle for %s is no longer live", m.ID)}
	}
	return Result{Status: types.StatusOnline}
}

// CloseAll releases every handle; used on shutdown.
func (a *InProc) CloseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, h := range a.handles {
		if err := h.Close(); err != nil {
			a.log.Warn().Str("model", id).Err(err).Msg("close handle")
		}
		delete(a.handles, id)
	}
}
