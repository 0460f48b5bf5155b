package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/config"
	"github.com/c360/journaldconcat/health"
)

// componentSet owns the created components in start order
type componentSet struct {
	managed []*component.ManagedComponent
	logger  *slog.Logger
}

// createComponents instantiates every enabled component in name order.
// Entries naming an unregistered factory are skipped with a warning.
func createComponents(
	registry *component.Registry,
	configs config.ComponentConfigs,
	deps component.Dependencies,
	logger *slog.Logger,
) (*componentSet, error) {
	set := &componentSet{logger: logger}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	slices.Sort(names)

	factories := registry.ListFactories()
	for _, name := range names {
		cc := configs[name]
		if !cc.Enabled {
			logger.Info("Component disabled in config", "name", name)
			continue
		}
		if _, ok := factories[cc.Name]; !ok {
			logger.Warn("Component configured but not registered",
				"name", name, "factory", cc.Name, "available", registry.ListComponentTypes())
			continue
		}

		comp, err := registry.CreateComponent(name, cc, deps)
		if err != nil {
			return nil, fmt.Errorf("create component %s: %w", name, err)
		}
		set.managed = append(set.managed, &component.ManagedComponent{
			Name:       name,
			Component:  comp,
			State:      component.StateCreated,
			StartOrder: len(set.managed),
		})
		logger.Info("Created component", "name", name, "factory", cc.Name, "type", cc.Type)
	}

	return set, nil
}

// startAll initializes and starts components in order. If one fails, the
// components already started are stopped again.
func (s *componentSet) startAll(ctx context.Context, stopTimeout time.Duration) error {
	for _, mc := range s.managed {
		lc, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			mc.State = component.StateStarted
			continue
		}

		if err := lc.Initialize(); err != nil {
			mc.State = component.StateFailed
			mc.LastError = err
			return stderrors.Join(fmt.Errorf("initialize %s: %w", mc.Name, err), s.stopAll(stopTimeout))
		}
		mc.State = component.StateInitialized

		mc.Context, mc.Cancel = context.WithCancel(ctx)
		if err := lc.Start(mc.Context); err != nil {
			mc.Cancel()
			mc.State = component.StateFailed
			mc.LastError = err
			return stderrors.Join(fmt.Errorf("start %s: %w", mc.Name, err), s.stopAll(stopTimeout))
		}
		mc.State = component.StateStarted
		s.logger.Info("Started component", "name", mc.Name)
	}
	return nil
}

// stopAll stops started components in reverse order within timeout
func (s *componentSet) stopAll(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var errs []error

	for _, mc := range slices.Backward(s.managed) {
		if mc.State != component.StateStarted {
			continue
		}

		if lc, ok := component.AsLifecycleComponent(mc.Component); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				remaining = time.Millisecond
			}
			if err := lc.Stop(remaining); err != nil {
				mc.LastError = err
				errs = append(errs, fmt.Errorf("stop %s: %w", mc.Name, err))
				s.logger.Error("Failed to stop component", "name", mc.Name, "error", err)
			}
		}
		if mc.Cancel != nil {
			mc.Cancel()
		}
		mc.State = component.StateStopped
		s.logger.Info("Stopped component", "name", mc.Name)
	}

	return stderrors.Join(errs...)
}

// names returns the component names in start order
func (s *componentSet) names() []string {
	out := make([]string, 0, len(s.managed))
	for _, mc := range s.managed {
		out = append(out, mc.Name)
	}
	return out
}

// counterSource reads back the counters a component has recorded
type counterSource interface {
	ComponentCounters(name string) (map[string]float64, error)
}

// registerHealth adds a probe per component to the monitor. When counters is
// set, each status carries the counters labelled with the component's name.
func (s *componentSet) registerHealth(monitor *health.Monitor, counters counterSource) {
	for _, mc := range s.managed {
		comp := mc.Component
		name := mc.Name
		monitor.Register(name, func() health.Status {
			status := health.FromComponentHealth(name, comp.Health())
			if counters == nil {
				return status
			}
			values, err := counters.ComponentCounters(comp.Meta().Name)
			if err != nil {
				s.logger.Debug("Failed to read component counters", "name", name, "error", err)
				return status
			}
			if len(values) > 0 {
				status.Metrics.Counters = values
			}
			return status
		})
	}
}
