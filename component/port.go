package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/journaldconcat/errors"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes any I/O interface
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable is the transport-specific half of a port
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share
	Type() string       // Port type identifier
}

// Subject returns the NATS subject a port reads or writes, or "" for port
// types without one.
func (p Port) Subject() string {
	switch cfg := p.Config.(type) {
	case NATSPort:
		return cfg.Subject
	case JetStreamPort:
		if len(cfg.Subjects) > 0 {
			return cfg.Subjects[0]
		}
	}
	return ""
}

// NATSPort - NATS pub/sub
type NATSPort struct {
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
}

// ResourceID returns unique identifier for NATS ports
func (n NATSPort) ResourceID() string {
	return fmt.Sprintf("nats:%s", n.Subject)
}

// IsExclusive returns false as multiple components can subscribe
func (n NATSPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSPort) Type() string {
	return "nats"
}

// JetStreamPort - NATS JetStream for durable, at-least-once delivery
type JetStreamPort struct {
	StreamName   string   `json:"stream_name"`
	Subjects     []string `json:"subjects"`
	ConsumerName string   `json:"consumer_name,omitempty"`
}

// ResourceID returns unique identifier for JetStream ports
func (j JetStreamPort) ResourceID() string {
	if j.StreamName != "" {
		return fmt.Sprintf("jetstream:%s", j.StreamName)
	}
	if len(j.Subjects) > 0 {
		return fmt.Sprintf("jetstream:%s", j.Subjects[0])
	}
	return "jetstream:unknown"
}

// IsExclusive returns false as JetStream manages consumer coordination
func (j JetStreamPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (j JetStreamPort) Type() string {
	return "jetstream"
}

// MarshalJSON encodes the port config together with its type so it can be
// reconstructed by UnmarshalJSON.
func (p Port) MarshalJSON() ([]byte, error) {
	type portAlias Port

	wrapper := struct {
		portAlias
		Config json.RawMessage `json:"config,omitempty"`
	}{
		portAlias: (portAlias)(p),
	}

	if p.Config != nil {
		data, err := json.Marshal(struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}{Type: p.Config.Type(), Data: p.Config})
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config marshaling")
		}
		wrapper.Config = data
	}

	return json.Marshal(wrapper)
}

// UnmarshalJSON rebuilds the Portable config from its type tag
func (p *Port) UnmarshalJSON(data []byte) error {
	type portAlias Port

	temp := struct {
		*portAlias
		Config json.RawMessage `json:"config"`
	}{
		portAlias: (*portAlias)(p),
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	if len(temp.Config) == 0 {
		return nil
	}

	var wrapper struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(temp.Config, &wrapper); err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", "config wrapper unmarshaling")
	}

	switch wrapper.Type {
	case "nats":
		var cfg NATSPort
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "nats config unmarshaling")
		}
		p.Config = cfg
	case "jetstream":
		var cfg JetStreamPort
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "jetstream config unmarshaling")
		}
		p.Config = cfg
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown config type: %s", wrapper.Type),
			"Port", "UnmarshalJSON", "config type validation")
	}

	return nil
}
