package types

import "time"

// ServingMethod identifies the backend technology a model is served by.
type ServingMethod string

const (
	// ServingLocalProcess is a locally-spawned service driven over a JSON RPC
	// control endpoint.
	ServingLocalProcess ServingMethod = "local_process"
	// ServingRemoteService is the same RPC shape over a network address, with
	// tighter timeouts and a circuit breaker.
	ServingRemoteService ServingMethod = "remote_service"
	// ServingOllama is a third-party inference server with its own lifecycle;
	// load/unload are advisory only.
	ServingOllama ServingMethod = "ollama"
	// ServingInProcess is a file-backed model loaded directly into this
	// process.
	ServingInProcess ServingMethod = "in_process"
	// ServingHeartbeat is a passive service observed through out-of-band
	// heartbeats; it has no load/unload actions.
	ServingHeartbeat ServingMethod = "heartbeat"
)

// ModelStatus is the normalized lifecycle state shared by all backends.
type ModelStatus string

const (
	StatusUnknown       ModelStatus = "unknown"
	StatusAvailable     ModelStatus = "available_not_loaded"
	StatusLoading       ModelStatus = "loading"
	StatusOnline        ModelStatus = "online"
	StatusUnhealthy     ModelStatus = "unhealthy"
	StatusOffline       ModelStatus = "offline"
	StatusError         ModelStatus = "error"
	StatusMisconfigured ModelStatus = "misconfigured"
)

// Resident reports whether a model in this status counts against the VRAM
// budget. Loading models reserve budget optimistically.
func (s ModelStatus) Resident() bool {
	return s == StatusOnline || s == StatusLoading
}

// Model is the static descriptor of a known model. Connection and capability
// fields are immutable after construction; Priority and IdleTimeoutSec may be
// hot-reloaded.
type Model struct {
	ID           string        `json:"id" yaml:"id" toml:"id"`
	Name         string        `json:"name,omitempty" yaml:"name" toml:"name"`
	Serving      ServingMethod `json:"serving_method" yaml:"serving_method" toml:"serving_method"`
	Capabilities []string      `json:"capabilities,omitempty" yaml:"capabilities" toml:"capabilities"`
	ContextLen   int           `json:"context_length,omitempty" yaml:"context_length" toml:"context_length"`
	EstVRAMMB    int           `json:"est_vram_mb" yaml:"est_vram_mb" toml:"est_vram_mb"`
	// Priority orders eviction: lower numbers are kept longest, higher
	// numbers are evicted first.
	Priority       int `json:"priority" yaml:"priority" toml:"priority"`
	IdleTimeoutSec int `json:"idle_timeout_sec,omitempty" yaml:"idle_timeout_sec" toml:"idle_timeout_sec"`

	// Connection info; exactly one of these is populated, selected by Serving.
	Address string `json:"address,omitempty" yaml:"address" toml:"address"`
	APIBase string `json:"api_base,omitempty" yaml:"api_base" toml:"api_base"`
	Path    string `json:"path,omitempty" yaml:"path" toml:"path"`

	// Tag is the server-side model name for third-party servers. Defaults to ID.
	Tag string `json:"tag,omitempty" yaml:"tag" toml:"tag"`

	// ExpectField/ExpectValue form the health predicate for RPC backends: the
	// health_check response must carry ExpectField equal to ExpectValue.
	ExpectField string `json:"expect_field,omitempty" yaml:"expect_field" toml:"expect_field"`
	ExpectValue string `json:"expect_value,omitempty" yaml:"expect_value" toml:"expect_value"`

	// HeartbeatTimeoutSec is the maximum age of a qualifying heartbeat before
	// a heartbeat-served model is considered offline.
	HeartbeatTimeoutSec int `json:"heartbeat_timeout_sec,omitempty" yaml:"heartbeat_timeout_sec" toml:"heartbeat_timeout_sec"`
}

// IdleTimeout returns the per-model idle timeout, falling back to def when
// unset. Zero or negative def disables idle unloading for this model.
func (m Model) IdleTimeout(def time.Duration) time.Duration {
	if m.IdleTimeoutSec > 0 {
		return time.Duration(m.IdleTimeoutSec) * time.Second
	}
	return def
}

// HeartbeatTimeout returns the heartbeat freshness window, falling back to def.
func (m Model) HeartbeatTimeout(def time.Duration) time.Duration {
	if m.HeartbeatTimeoutSec > 0 {
		return time.Duration(m.HeartbeatTimeoutSec) * time.Second
	}
	return def
}

// ServerTag returns the name used to address the model on a third-party server.
func (m Model) ServerTag() string {
	if m.Tag != "" {
		return m.Tag
	}
	return m.ID
}

// HasCapability reports whether the model lists the given task type.
func (m Model) HasCapability(task string) bool {
	for _, c := range m.Capabilities {
		if c == task {
			return true
		}
	}
	return false
}

// Evictable reports whether the orchestrator can programmatically unload this
// model. Advisory third-party servers and heartbeat-only services are never
// selected as eviction victims.
func (m Model) Evictable() bool {
	switch m.Serving {
	case ServingOllama, ServingHeartbeat:
		return false
	default:
		return true
	}
}
