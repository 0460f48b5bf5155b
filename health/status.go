// Package health aggregates component and connection health into one status
// that the metrics server reports on /health.
package health

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/c360/journaldconcat/component"
)

// Health states
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|tls|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one component, or of the whole process when it
// carries sub-statuses.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the counters a component reports with its health
type Metrics struct {
	Uptime       time.Duration      `json:"uptime"`
	ErrorCount   int                `json:"error_count"`
	LastActivity time.Time          `json:"last_activity,omitempty"`
	Counters     map[string]float64 `json:"counters,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

func newStatus(name, state, message string) Status {
	return Status{
		Component: name,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(name, message string) Status {
	return newStatus(name, StateHealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(name, message string) Status {
	return newStatus(name, StateDegraded, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(name, message string) Status {
	return newStatus(name, StateUnhealthy, message)
}

// Aggregate rolls sub-statuses up into one. Any unhealthy sub-status makes
// the aggregate unhealthy; otherwise any degraded one makes it degraded.
// Sub-statuses are ordered by component name.
func Aggregate(name string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(name, "No components registered")
	}

	hasUnhealthy, hasDegraded := false, false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(name, "One or more components are unhealthy")
	case hasDegraded:
		status = NewDegraded(name, "One or more components are degraded")
	default:
		status = NewHealthy(name, "All components are healthy")
	}

	status.SubStatuses = slices.Clone(subStatuses)
	slices.SortFunc(status.SubStatuses, func(a, b Status) int {
		return strings.Compare(a.Component, b.Component)
	})
	return status
}

// FromComponentHealth converts a component report. A healthy component that
// has recorded errors is degraded. Error text is sanitized before it is
// exposed.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	lastError := sanitizeErrorMessage(ch.LastError)

	var status Status
	switch {
	case !ch.Healthy:
		status = NewUnhealthy(name, cmp.Or(lastError, "Component not running"))
	case ch.ErrorCount > 0:
		status = NewDegraded(name, cmp.Or(lastError, "Component reported errors"))
	default:
		status = NewHealthy(name, "Component healthy")
	}

	status.Metrics = &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}
	return status
}

// sanitizeErrorMessage replaces URLs, paths, addresses, ports and
// credentials so they are not exposed over HTTP
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = unixPathRegex.ReplaceAllString(msg, "[PATH]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = portRegex.ReplaceAllString(msg, "[PORT]")
	return credentialRegex.ReplaceAllString(msg, "[REDACTED]")
}
