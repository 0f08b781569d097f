// Package registry holds the catalog of known models and their observed
// runtime state.
//
// The registry is not internally synchronized: the orchestrator owns all
// mutable state behind one mutex, and sweepers and the control plane reach
// entries only through it.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"orchd/pkg/types"
)

// Entry pairs a static descriptor with its mutable runtime state. Entries are
// created at configuration-load time and never destroyed while the process
// runs; only Status and the timestamps transition.
type Entry struct {
	Model           types.Model
	Status          types.ModelStatus
	LastUsed        time.Time
	LastHealthCheck time.Time
}

// Info projects an entry into the wire shape.
func (e *Entry) Info() types.ModelInfo {
	info := types.ModelInfo{Model: e.Model, Status: e.Status}
	if !e.LastUsed.IsZero() {
		info.LastUsed = e.LastUsed.Unix()
	}
	if !e.LastHealthCheck.IsZero() {
		info.LastHealthCheck = e.LastHealthCheck.Unix()
	}
	return info
}

type Registry struct {
	entries map[string]*Entry
	ids     []string
}

// Validate checks that the connection field selected by the serving method is
// populated. A failing model is kept in the catalog as misconfigured rather
// than rejected, so the condition is visible through the control plane.
func Validate(m types.Model) error {
	if m.ID == "" {
		return fmt.Errorf("model id is empty")
	}
	switch m.Serving {
	case types.ServingLocalProcess, types.ServingRemoteService:
		if m.Address == "" {
			return fmt.Errorf("model %s: serving method %s requires address", m.ID, m.Serving)
		}
	case types.ServingOllama:
		if m.APIBase == "" {
			return fmt.Errorf("model %s: serving method %s requires api_base", m.ID, m.Serving)
		}
	case types.ServingInProcess:
		if m.Path == "" {
			return fmt.Errorf("model %s: serving method %s requires path", m.ID, m.Serving)
		}
	case types.ServingHeartbeat:
		// Nothing to dial; heartbeats arrive out of band.
	default:
		return fmt.Errorf("model %s: unknown serving method %q", m.ID, m.Serving)
	}
	return nil
}

// New builds a registry from the configured catalog. Duplicate ids keep the
// first occurrence.
func New(models []types.Model, log zerolog.Logger) *Registry {
	r := &Registry{entries: make(map[string]*Entry, len(models))}
	for _, m := range models {
		if _, dup := r.entries[m.ID]; dup {
			log.Warn().Str("model", m.ID).Msg("duplicate model id, keeping first")
			continue
		}
		status := types.StatusUnknown
		if err := Validate(m); err != nil {
			log.Warn().Err(err).Str("model", m.ID).Msg("model misconfigured")
			status = types.StatusMisconfigured
		}
		r.entries[m.ID] = &Entry{Model: m, Status: status}
		r.ids = append(r.ids, m.ID)
	}
	sort.Strings(r.ids)
	return r
}

func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// All returns entries in stable id order.
func (r *Registry) All() []*Entry {
	out := make([]*Entry, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *Registry) Len() int { return len(r.entries) }

// SeedLastUsed restores persisted recency so LRU ordering survives restarts.
// Only models still in the catalog are touched.
func (r *Registry) SeedLastUsed(seen map[string]time.Time) {
	for id, t := range seen {
		if e, ok := r.entries[id]; ok && e.LastUsed.Before(t) {
			e.LastUsed = t
		}
	}
}

// ApplyTuning hot-reloads the mutable descriptor fields (priority and idle
// timeout) from a fresh catalog. Immutable fields are left untouched; a
// changed connection or capability field is reported so the operator knows a
// restart is needed.
func (r *Registry) ApplyTuning(models []types.Model, log zerolog.Logger) {
	for _, m := range models {
		e, ok := r.entries[m.ID]
		if !ok {
			log.Warn().Str("model", m.ID).Msg("reload: new models require a restart, ignoring")
			continue
		}
		if e.Model.Priority != m.Priority {
			log.Info().Str("model", m.ID).Int("priority", m.Priority).Msg("reload: priority updated")
			e.Model.Priority = m.Priority
		}
		if e.Model.IdleTimeoutSec != m.IdleTimeoutSec {
			log.Info().Str("model", m.ID).Int("idle_timeout_sec", m.IdleTimeoutSec).Msg("reload: idle timeout updated")
			e.Model.IdleTimeoutSec = m.IdleTimeoutSec
		}
		if e.Model.Address != m.Address || e.Model.APIBase != m.APIBase || e.Model.Path != m.Path {
			log.Warn().Str("model", m.ID).Msg("reload: connection info changes require a restart, ignoring")
		}
	}
}
