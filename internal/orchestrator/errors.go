package orchestrator

import "fmt"

// unknownModelError signals a client-supplied id absent from the registry.
type unknownModelError struct{ id string }

func (e unknownModelError) Error() string { return "unknown model: " + e.id }

func ErrUnknownModel(id string) error { return unknownModelError{id: id} }

// IsUnknownModel reports whether err indicates a missing model id.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}

// budgetExceededError signals that eviction could not free enough memory.
type budgetExceededError struct {
	id         string
	requiredMB int
}

func (e budgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: cannot free %d MB for %s", e.requiredMB, e.id)
}

func ErrBudgetExceeded(id string, requiredMB int) error {
	return budgetExceededError{id: id, requiredMB: requiredMB}
}

func IsBudgetExceeded(err error) bool {
	_, ok := err.(budgetExceededError)
	return ok
}

// misconfiguredError signals a model excluded from lifecycle operations
// because a required descriptor field is missing.
type misconfiguredError struct{ id string }

func (e misconfiguredError) Error() string { return "model misconfigured: " + e.id }

func ErrMisconfigured(id string) error { return misconfiguredError{id: id} }

func IsMisconfigured(err error) bool {
	_, ok := err.(misconfiguredError)
	return ok
}

// lifecycleUnsupportedError signals a load/unload request against a backend
// with no such action (heartbeat-observed services).
type lifecycleUnsupportedError struct{ id string }

func (e lifecycleUnsupportedError) Error() string {
	return "backend for " + e.id + " does not support load/unload"
}

func ErrLifecycleUnsupported(id string) error { return lifecycleUnsupportedError{id: id} }

func IsLifecycleUnsupported(err error) bool {
	_, ok := err.(lifecycleUnsupportedError)
	return ok
}

// backendUnreachableError wraps a transport-level failure; the model is
// marked offline and retried by the next health sweep, not by the caller.
type backendUnreachableError struct {
	id    string
	cause error
}

func (e backendUnreachableError) Error() string {
	return fmt.Sprintf("backend for %s unreachable: %v", e.id, e.cause)
}

func (e backendUnreachableError) Unwrap() error { return e.cause }

func ErrBackendUnreachable(id string, cause error) error {
	return backendUnreachableError{id: id, cause: cause}
}

func IsBackendUnreachable(err error) bool {
	_, ok := err.(backendUnreachableError)
	return ok
}

// backendProtocolError wraps a malformed or unexpected backend response.
type backendProtocolError struct {
	id    string
	cause error
}

func (e backendProtocolError) Error() string {
	return fmt.Sprintf("backend for %s protocol error: %v", e.id, e.cause)
}

func (e backendProtocolError) Unwrap() error { return e.cause }

func ErrBackendProtocol(id string, cause error) error {
	return backendProtocolError{id: id, cause: cause}
}

func IsBackendProtocol(err error) bool {
	_, ok := err.(backendProtocolError)
	return ok
}
