package health

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Probe reports the current health of one named part of the process
type Probe func() Status

// Monitor tracks health of multiple components in a thread-safe manner.
// Statuses are either pushed with Update or pulled from probes on Check.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Register adds a probe that Check calls for the named component
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Update records the status of a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = normalize(name, status)
}

// Get retrieves the last known status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Remove stops tracking a component and drops its probe
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// Names returns the tracked component names in order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := slices.Collect(maps.Keys(m.statuses))
	for name := range m.probes {
		if _, ok := m.statuses[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Check runs every probe, stores the results and returns the aggregate
func (m *Monitor) Check(systemName string) Status {
	m.mu.RLock()
	probes := maps.Clone(m.probes)
	m.mu.RUnlock()

	// probes run outside the lock; they call into components
	results := make(map[string]Status, len(probes))
	for name, probe := range probes {
		results[name] = normalize(name, probe())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.statuses, results)
	return Aggregate(systemName, slices.Collect(maps.Values(m.statuses)))
}

// Handler serves the aggregate as JSON. Unhealthy answers 503, healthy and
// degraded answer 200.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Check(systemName)

		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

func normalize(name string, status Status) Status {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
