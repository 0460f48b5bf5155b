package component

// PortDefinition represents a port configuration from JSON
type PortDefinition struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"` // "nats" (default) or "jetstream"
	Subject      string `json:"subject,omitempty"`
	Required     bool   `json:"required,omitempty"`
	Description  string `json:"description,omitempty"`
	StreamName   string `json:"stream_name,omitempty"`
	ConsumerName string `json:"consumer_name,omitempty"`
}

// PortConfig represents port configuration in component config
type PortConfig struct {
	Inputs  []PortDefinition `json:"inputs,omitempty"`
	Outputs []PortDefinition `json:"outputs,omitempty"`
}

// MergePortConfigs merges default ports with configured overrides. Defaults
// keep their order; ports only present in overrides are appended in the order
// given.
func MergePortConfigs(defaults []Port, overrides []PortDefinition, direction Direction) []Port {
	result := make([]Port, 0, len(defaults)+len(overrides))
	byName := make(map[string]PortDefinition, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}

	for _, d := range defaults {
		if o, found := byName[d.Name]; found {
			result = append(result, BuildPortFromDefinition(o, direction))
			delete(byName, d.Name)
			continue
		}
		result = append(result, d)
	}

	for _, o := range overrides {
		if _, pending := byName[o.Name]; pending {
			result = append(result, BuildPortFromDefinition(o, direction))
			delete(byName, o.Name)
		}
	}

	return result
}

// BuildPortFromDefinition creates a Port from a PortDefinition
func BuildPortFromDefinition(def PortDefinition, direction Direction) Port {
	port := Port{
		Name:        def.Name,
		Direction:   direction,
		Required:    def.Required,
		Description: def.Description,
	}

	switch def.Type {
	case "jetstream":
		port.Config = JetStreamPort{
			StreamName:   def.StreamName,
			Subjects:     []string{def.Subject},
			ConsumerName: def.ConsumerName,
		}
	default:
		port.Config = NATSPort{Subject: def.Subject}
	}

	return port
}
