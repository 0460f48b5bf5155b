package partialconcat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/errors"
)

// Default field names written by the Docker journald and fluentd log drivers
const (
	DefaultKey               = "message"
	DefaultMatchKey          = "container_partial_message"
	DefaultStreamIdentityKey = "container_id"
	DefaultFlushInterval     = 60 * time.Second

	// DefaultDiagnosticTagPattern matches the collector's own log events
	DefaultDiagnosticTagPattern = `^fluent\.(?:trace|debug|info|warn|error|fatal)$`
)

// Duration is a time.Duration that decodes from a number of seconds or a
// duration string such as "90s".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			*d = Duration(secs * float64(time.Second))
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be seconds or a duration string: %w", err)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds configuration for the partial message concat processor
type Config struct {
	Key               string   `json:"key"`
	MatchKey          string   `json:"match_key"`
	StreamIdentityKey string   `json:"stream_identity_key"`
	FlushInterval     Duration `json:"flush_interval"`
	TimeoutLabel      string   `json:"timeout_label,omitempty"`

	DiagnosticTagPattern string `json:"diagnostic_tag_pattern,omitempty"`

	// MultilineStartRegexp is accepted for config compatibility and ignored.
	MultilineStartRegexp string `json:"multiline_start_regexp,omitempty"`

	// SweepIntervalMS is the timeout sweep period; zero means one second.
	SweepIntervalMS int `json:"sweep_interval_ms,omitempty"`

	Ports  *component.PortConfig `json:"ports,omitempty"`
	Labels map[string]string     `json:"labels,omitempty"`
}

func (c Config) sweepInterval() time.Duration {
	if c.SweepIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Key:                  DefaultKey,
		MatchKey:             DefaultMatchKey,
		StreamIdentityKey:    DefaultStreamIdentityKey,
		FlushInterval:        Duration(DefaultFlushInterval),
		DiagnosticTagPattern: DefaultDiagnosticTagPattern,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "input",
					Type:        "nats",
					Subject:     "logs.docker.>",
					Required:    true,
					Description: "Event streams from the log driver",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "output",
					Type:        "nats",
					Subject:     "logs.concat",
					Required:    true,
					Description: "Event streams with partial messages joined",
				},
				{
					Name:        errorPortName,
					Type:        "nats",
					Subject:     "logs.concat.error",
					Description: "Records that failed and timeout flushes",
				},
			},
		},
	}
}

// Validate checks field names and the diagnostic tag pattern. Whether the
// timeout label has a route is checked when the filter is built.
func (c Config) Validate() error {
	switch {
	case c.Key == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PartialConcat", "Validate", "key is required")
	case c.MatchKey == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PartialConcat", "Validate", "match_key is required")
	case c.StreamIdentityKey == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PartialConcat", "Validate",
			"stream_identity_key is required")
	}

	if _, err := regexp.Compile(c.diagnosticPattern()); err != nil {
		return errors.WrapInvalid(err, "PartialConcat", "Validate", "compile diagnostic_tag_pattern")
	}

	if c.SweepIntervalMS < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "PartialConcat", "Validate",
			"sweep_interval_ms must not be negative")
	}
	return nil
}

func (c Config) diagnosticPattern() string {
	if c.DiagnosticTagPattern == "" {
		return DefaultDiagnosticTagPattern
	}
	return c.DiagnosticTagPattern
}

// ParseConfig decodes raw over DefaultConfig, so omitted keys keep their
// defaults. Ports are left as configured; resolvePorts merges them with the
// default ports by name.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	cfg.Ports = nil
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "PartialConcat", "ParseConfig", "config unmarshal")
	}
	return cfg, cfg.Validate()
}

// resolvePorts overlays configured port definitions on the default ports,
// matching by name.
func (c Config) resolvePorts() (inputs, outputs []component.Port) {
	defaults := DefaultConfig().Ports
	var configured component.PortConfig
	if c.Ports != nil {
		configured = *c.Ports
	}

	build := func(defs []component.PortDefinition, dir component.Direction) []component.Port {
		ports := make([]component.Port, 0, len(defs))
		for _, def := range defs {
			ports = append(ports, component.BuildPortFromDefinition(def, dir))
		}
		return ports
	}

	inputs = component.MergePortConfigs(
		build(defaults.Inputs, component.DirectionInput), configured.Inputs, component.DirectionInput)
	outputs = component.MergePortConfigs(
		build(defaults.Outputs, component.DirectionOutput), configured.Outputs, component.DirectionOutput)
	return inputs, outputs
}

func intPtr(v int) *int { return &v }

var partialConcatSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"key": {
			Type:        "string",
			Description: "Field whose text is joined across fragments",
			Default:     DefaultKey,
			Category:    "basic",
		},
		"match_key": {
			Type:        "string",
			Description: `Field that is "true" on partial records`,
			Default:     DefaultMatchKey,
			Category:    "basic",
		},
		"stream_identity_key": {
			Type:        "string",
			Description: "Field that, with the tag, identifies a stream",
			Default:     DefaultStreamIdentityKey,
			Category:    "basic",
		},
		"flush_interval": {
			Type:        "duration",
			Description: "Idle time before pending fragments are flushed, 0 disables",
			Default:     "60s",
			Category:    "basic",
		},
		"timeout_label": {
			Type:        "string",
			Description: "Label that receives timeout flushes instead of the error output",
			Category:    "advanced",
		},
		"diagnostic_tag_pattern": {
			Type:        "string",
			Description: "Tags matching this pattern pass through untouched",
			Default:     DefaultDiagnosticTagPattern,
			Category:    "advanced",
		},
		"multiline_start_regexp": {
			Type:        "string",
			Description: "Accepted and ignored",
			Category:    "advanced",
		},
		"labels": {
			Type:        "object",
			Description: "Label name to NATS subject",
			Category:    "advanced",
		},
		"ports": {
			Type:        "ports",
			Description: "Port configuration",
			Category:    "basic",
		},
		"sweep_interval_ms": {
			Type:        "int",
			Description: "Timeout sweep period in milliseconds",
			Default:     1000,
			Minimum:     intPtr(0),
			Category:    "advanced",
		},
	},
}
