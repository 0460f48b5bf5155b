package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/c360/journaldconcat/errors"
)

// Info holds metadata about an available component type
type Info struct {
	Type        string `json:"type"`        // "input", "processor", "output"
	Protocol    string `json:"protocol"`    // Technical protocol (nats, journald, ...)
	Domain      string `json:"domain"`      // Business domain (logging, ...)
	Description string `json:"description"` // Human-readable description
	Version     string `json:"version"`     // Component version
}

// Factory creates a component instance from raw JSON configuration and
// dependencies. Factories parse and validate config only; all I/O belongs in
// the component's Start method.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Registration holds factory and metadata for a component type
type Registration struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Protocol    string       `json:"protocol"`
	Domain      string       `json:"domain"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Schema      ConfigSchema `json:"schema"`
	Factory     Factory      `json:"-"`
}

// RegistrationConfig is the argument to RegisterWithConfig. It maps 1:1 to
// Registration.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Schema      ConfigSchema
	Type        string
	Protocol    string
	Domain      string
	Description string
	Version     string
}

// ComponentConfig selects a factory and carries its raw configuration.
type ComponentConfig struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Registry manages component factories and instances
type Registry struct {
	factories map[string]*Registration
	instances map[string]Discoverable
	resources map[string]string // resource ID -> instance name
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]Discoverable),
		resources: make(map[string]string),
	}
}

// RegisterWithConfig registers a factory described by config
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:        config.Name,
		Type:        config.Type,
		Protocol:    config.Protocol,
		Domain:      config.Domain,
		Description: config.Description,
		Version:     config.Version,
		Schema:      config.Schema,
		Factory:     config.Factory,
	})
}

// RegisterFactory registers a component factory with the given name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	switch {
	case name == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	case registration == nil:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	case registration.Factory == nil:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	case registration.Type == "":
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("factory '%s' is already registered", name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[name] = registration
	return nil
}

// CreateComponent validates config against the factory's schema, runs the
// factory and registers the result under instanceName.
func (r *Registry) CreateComponent(
	instanceName string, config ComponentConfig, deps Dependencies,
) (Discoverable, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance name validation")
	}
	if err := ValidateComponentName(config.Name); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory name validation")
	}
	if config.Type == "" {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "Registry", "CreateComponent", "component type validation")
	}
	if err := ValidateFactoryConfig(config.Config); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "config validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[config.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown component factory '%s'", config.Name),
			"Registry", "CreateComponent", "factory lookup")
	}
	if registration.Type != config.Type {
		return nil, errors.WrapInvalid(
			fmt.Errorf("component '%s' is type '%s', not '%s'", config.Name, registration.Type, config.Type),
			"Registry", "CreateComponent", "type validation")
	}

	if len(config.Config) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(config.Config, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "Registry", "CreateComponent", "config decoding")
		}
		if verrs := ValidateConfig(raw, registration.Schema); len(verrs) > 0 {
			return nil, errors.WrapInvalid(fmt.Errorf("%s: %s", verrs[0].Field, verrs[0].Message),
				"Registry", "CreateComponent", "schema validation")
		}
	}

	comp, err := registration.Factory(config.Config, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}

	if err := r.RegisterInstance(instanceName, comp); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance registration")
	}

	return comp, nil
}

// RegisterInstance registers a component instance with the given name.
// Exclusive port resources may only be claimed by one instance.
func (r *Registry) RegisterInstance(name string, comp Discoverable) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance name validation")
	}
	if comp == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "component validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("instance '%s' is already registered", name),
			"Registry", "RegisterInstance", "duplicate instance check")
	}

	ports := slices.Concat(comp.InputPorts(), comp.OutputPorts())
	for _, port := range ports {
		if port.Config == nil || !port.Config.IsExclusive() {
			continue
		}
		if owner, taken := r.resources[port.Config.ResourceID()]; taken {
			return errors.WrapInvalid(
				fmt.Errorf("resource %s already claimed by %s", port.Config.ResourceID(), owner),
				"Registry", "RegisterInstance", "resource conflict check")
		}
	}

	r.instances[name] = comp
	for _, port := range ports {
		if port.Config != nil && port.Config.IsExclusive() {
			r.resources[port.Config.ResourceID()] = name
		}
	}
	return nil
}

// UnregisterInstance removes a component instance and releases its resources
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; !exists {
		return
	}
	delete(r.instances, name)
	for id, owner := range r.resources {
		if owner == name {
			delete(r.resources, id)
		}
	}
}

// Component returns the named instance, or nil
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListComponents returns a copy of all registered instances
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.instances)
}

// ListFactories returns a copy of all registered factories
func (r *Registry) ListFactories() map[string]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.factories)
}

// ListAvailable describes every registered factory
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		out[name] = Info{
			Type:        reg.Type,
			Protocol:    reg.Protocol,
			Domain:      reg.Domain,
			Description: reg.Description,
			Version:     reg.Version,
		}
	}
	return out
}

// ListComponentTypes returns the sorted factory names
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateComponentName allows alphanumerics, dash, underscore and dot
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxStringLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "invalid name characters")
		}
	}
	return nil
}
