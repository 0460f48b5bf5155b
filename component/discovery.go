package component

import (
	"time"
)

// Discoverable is what every component exposes to the daemon and to the
// health endpoint.
type Discoverable interface {
	Meta() Metadata
	InputPorts() []Port
	OutputPorts() []Port
	ConfigSchema() ConfigSchema
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata names a component instance and its kind
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // input, processor or output
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ConfigSchema lists the accepted config properties. CreateComponent checks
// raw config against it before the factory runs.
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes one config property. Minimum and Maximum apply to
// int, float and duration properties.
type PropertySchema struct {
	Type        string   `json:"type"` // string, int, bool, float, duration, enum, object, ports
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
	Category    string   `json:"category,omitempty"` // basic or advanced
}

// HealthStatus is a component's own view of its health. A component that
// is not running reports Healthy=false.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics summarizes traffic through a component. Buffered counts items
// held inside the component that have not been emitted yet.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	Buffered          int       `json:"buffered"`
	LastActivity      time.Time `json:"last_activity"`
}
