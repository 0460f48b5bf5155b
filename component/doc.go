// Package component provides the component infrastructure for journaldconcat:
// discovery, explicit factory registration and lifecycle management.
//
// # Registration
//
// Components are registered explicitly rather than through init(). Each
// component package exports Register(*Registry) error, and
// componentregistry.RegisterAll wires them into a registry created by main:
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:     "partial_concat",
//			Factory:  NewProcessor,
//			Schema:   schema,
//			Type:     "processor",
//			Protocol: "nats",
//			Domain:   "logging",
//		})
//	}
//
// # Creation
//
// CreateComponent validates the raw JSON config (size, nesting, schema
// types) before running the factory. Factories parse config and build
// the component; they must not perform I/O.
//
//	comp, err := registry.CreateComponent("concat", component.ComponentConfig{
//		Name:   "partial_concat",
//		Type:   "processor",
//		Config: raw,
//	}, deps)
//
// # Lifecycle
//
// Components that implement LifecycleComponent are driven through
// Initialize, Start(ctx) and Stop(timeout). Stop must release everything
// Start acquired within the timeout.
//
// # Ports
//
// Ports describe where a component reads and writes. NATSPort is plain
// pub/sub; JetStreamPort names a stream and durable consumer. Configured
// PortDefinitions override defaults by name through MergePortConfigs.
package component
