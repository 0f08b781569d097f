// Package adapter translates orchestrator lifecycle intents into
// backend-specific calls, one implementation per serving method.
//
// Adapter calls never propagate transport failures as raw errors across the
// orchestrator boundary: every call resolves to a Result carrying the
// normalized model status plus a descriptive error, so callers update runtime
// state uniformly regardless of backend technology.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// Result is the outcome of a lifecycle call.
type Result struct {
	Status types.ModelStatus
	Err    error
}

// Adapter is the per-backend lifecycle contract.
type Adapter interface {
	Load(ctx context.Context, m types.Model) Result
	Unload(ctx context.Context, m types.Model) Result
	CheckHealth(ctx context.Context, m types.Model) Result
}

// ErrLifecycleUnsupported marks backends with no load/unload action
// (heartbeat-observed services).
var ErrLifecycleUnsupported = errors.New("backend does not support load/unload")

// ErrCircuitOpen marks calls skipped because the backend is known down.
var ErrCircuitOpen = errors.New("circuit open: backend known down")

// Options holds shared tunables for adapter construction.
type Options struct {
	// FastTimeout bounds health checks and unloads.
	FastTimeout time.Duration
	// SlowTimeout bounds first-time cold loads of large models.
	SlowTimeout time.Duration
	// RemoteLoadTimeout bounds loads on remote services, which get a shorter
	// budget than local cold loads.
	RemoteLoadTimeout time.Duration

	CircuitThreshold int
	CircuitCooldown  time.Duration

	// InProcCtxSize and InProcThreads configure the in-process runtime.
	InProcCtxSize int
	InProcThreads int

	// HeartbeatTimeout is the default freshness window for heartbeat models.
	HeartbeatTimeout time.Duration

	Client *http.Client
	Logger zerolog.Logger
}

const (
	defaultFastTimeout       = 5 * time.Second
	defaultSlowTimeout       = 120 * time.Second
	defaultRemoteLoadTimeout = 30 * time.Second
	defaultCircuitThreshold  = 3
	defaultCircuitCooldown   = 30 * time.Second
	defaultHeartbeatTimeout  = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.FastTimeout <= 0 {
		o.FastTimeout = defaultFastTimeout
	}
	if o.SlowTimeout <= 0 {
		o.SlowTimeout = defaultSlowTimeout
	}
	if o.RemoteLoadTimeout <= 0 {
		o.RemoteLoadTimeout = defaultRemoteLoadTimeout
	}
	if o.CircuitThreshold <= 0 {
		o.CircuitThreshold = defaultCircuitThreshold
	}
	if o.CircuitCooldown <= 0 {
		o.CircuitCooldown = defaultCircuitCooldown
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if o.Client == nil {
		o.Client = newHTTPClient(o.FastTimeout)
	}
	return o
}

// newHTTPClient builds a client with a bounded dialer. Timeout stays 0 on the
// client itself: every request carries a context deadline.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: 0}
}

// Factory constructs and caches adapters per serving method. The in-process
// runtime and the heartbeat tracker are shared across models.
type Factory struct {
	opts       Options
	inproc     *InProc
	heartbeats *Heartbeats
}

func NewFactory(opts Options) *Factory {
	opts = opts.withDefaults()
	return &Factory{
		opts:       opts,
		inproc:     NewInProc(opts),
		heartbeats: NewHeartbeats(opts),
	}
}

// Heartbeats exposes the shared heartbeat tracker for out-of-band feeds.
func (f *Factory) Heartbeats() *Heartbeats { return f.heartbeats }

// Close releases in-process model handles. Called on shutdown.
func (f *Factory) Close() { f.inproc.CloseAll() }

// For returns the adapter serving the given model.
func (f *Factory) For(m types.Model) (Adapter, error) {
	switch m.Serving {
	case types.ServingLocalProcess:
		return newRPCAdapter(f.opts, f.opts.SlowTimeout), nil
	case types.ServingRemoteService:
		return newRemoteAdapter(f.opts), nil
	case types.ServingOllama:
		return newOllamaAdapter(f.opts), nil
	case types.ServingInProcess:
		return f.inproc, nil
	case types.ServingHeartbeat:
		return f.heartbeats, nil
	default:
		return nil, fmt.Errorf("unknown serving method %q", m.Serving)
	}
}
