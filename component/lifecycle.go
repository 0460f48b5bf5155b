package component

import (
	"context"
	"time"
)

// State is where a managed component is in its lifecycle
type State int

// Lifecycle states, in the order a healthy component passes through them
const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed
)

var stateNames = [...]string{"created", "initialized", "started", "stopped", "failed"}

func (cs State) String() string {
	if cs < 0 || int(cs) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[cs]
}

// LifecycleComponent is a component the daemon starts and stops.
// Initialize does no I/O. Start subscribes and spawns workers. Stop must
// flush buffered data and release resources within timeout.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent is the daemon's record of one created component. Context
// is the child context handed to Start and Cancel releases it after Stop.
type ManagedComponent struct {
	Name       string
	Component  Discoverable
	State      State
	Context    context.Context
	Cancel     context.CancelFunc
	StartOrder int
	LastError  error
}

// IsLifecycleComponent reports whether comp can be started and stopped
func IsLifecycleComponent(comp Discoverable) bool {
	_, ok := comp.(LifecycleComponent)
	return ok
}

// AsLifecycleComponent returns comp as a LifecycleComponent if it is one
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}
