package orchestrator

import "time"

// Lifecycle event names.
const (
	EventLoadStart        = "load_start"
	EventLoadReady        = "load_ready"
	EventLoadFail         = "load_fail"
	EventUnload           = "unload"
	EventEvict            = "evict"
	EventIdleUnload       = "idle_unload"
	EventHealthTransition = "health_transition"
	EventSelectDegraded   = "select_degraded"
)

// Event is a lifecycle event emitted by the orchestrator.
type Event struct {
	Name    string
	ModelID string
	At      time.Time
	Fields  map[string]any
}

// EventPublisher receives events from the orchestrator. Implementations must
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func (o *Orchestrator) publish(name, modelID string, fields map[string]any) {
	o.pub.Publish(Event{Name: name, ModelID: modelID, At: o.now(), Fields: fields})
}
