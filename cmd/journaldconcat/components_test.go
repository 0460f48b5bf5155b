package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/config"
	"github.com/c360/journaldconcat/health"
	"github.com/c360/journaldconcat/metric"
)

// journal records lifecycle calls across components
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type stubComponent struct {
	name     string
	journal  *journal
	startErr error
	stopErr  error
}

func (s *stubComponent) Meta() component.Metadata {
	return component.Metadata{Name: "stub-meta", Type: "processor"}
}
func (s *stubComponent) InputPorts() []component.Port { return nil }
func (s *stubComponent) OutputPorts() []component.Port { return nil }
func (s *stubComponent) ConfigSchema() component.ConfigSchema { return component.ConfigSchema{} }
func (s *stubComponent) Health() component.HealthStatus { return component.HealthStatus{Healthy: true} }
func (s *stubComponent) DataFlow() component.FlowMetrics { return component.FlowMetrics{} }

func (s *stubComponent) Initialize() error {
	s.journal.add("init " + s.name)
	return nil
}

func (s *stubComponent) Stop(_ time.Duration) error {
	s.journal.add("stop " + s.name)
	return s.stopErr
}

func (s *stubComponent) Start(_ context.Context) error {
	s.journal.add("start " + s.name)
	return s.startErr
}

type stubOptions struct {
	FailStart bool `json:"fail_start"`
	FailStop  bool `json:"fail_stop"`
}

func newStubRegistry(t *testing.T, j *journal) *component.Registry {
	t.Helper()
	registry := component.NewRegistry()
	require.NoError(t, registry.RegisterWithConfig(component.RegistrationConfig{
		Name: "stub",
		Type: "processor",
		Factory: func(raw json.RawMessage, _ component.Dependencies) (component.Discoverable, error) {
			var opts stubOptions
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &opts); err != nil {
					return nil, err
				}
			}
			c := &stubComponent{journal: j}
			if opts.FailStart {
				c.startErr = errors.New("start boom")
			}
			if opts.FailStop {
				c.stopErr = errors.New("stop boom")
			}
			return c, nil
		},
	}))
	return registry
}

func stubConfig(enabled bool, raw string) component.ComponentConfig {
	cc := component.ComponentConfig{Name: "stub", Type: "processor", Enabled: enabled}
	if raw != "" {
		cc.Config = json.RawMessage(raw)
	}
	return cc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// named fills in stub names after creation so journal entries are readable
func named(set *componentSet) {
	for _, mc := range set.managed {
		mc.Component.(*stubComponent).name = mc.Name
	}
}

func TestCreateComponents_SkipsDisabledAndUnknown(t *testing.T) {
	j := &journal{}
	registry := newStubRegistry(t, j)

	configs := config.ComponentConfigs{
		"b-proc":   stubConfig(true, ""),
		"a-proc":   stubConfig(true, ""),
		"off":      stubConfig(false, ""),
		"mystery":  {Name: "not_registered", Type: "processor", Enabled: true},
	}

	set, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"a-proc", "b-proc"}, set.names())
	assert.NotNil(t, registry.Component("a-proc"))
	assert.Nil(t, registry.Component("off"))
}

func TestCreateComponents_TypeMismatch(t *testing.T) {
	registry := newStubRegistry(t, &journal{})
	configs := config.ComponentConfigs{
		"wrong": {Name: "stub", Type: "output", Enabled: true},
	}

	_, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create component wrong")
}

func TestComponentSet_StartAndStopOrder(t *testing.T) {
	j := &journal{}
	registry := newStubRegistry(t, j)
	configs := config.ComponentConfigs{
		"first":  stubConfig(true, ""),
		"second": stubConfig(true, ""),
	}

	set, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.NoError(t, err)
	named(set)

	require.NoError(t, set.startAll(context.Background(), time.Second))
	for _, mc := range set.managed {
		assert.Equal(t, component.StateStarted, mc.State)
	}

	require.NoError(t, set.stopAll(time.Second))
	assert.Equal(t, []string{
		"init first", "start first",
		"init second", "start second",
		"stop second", "stop first",
	}, j.list())

	for _, mc := range set.managed {
		assert.Equal(t, component.StateStopped, mc.State)
		require.Error(t, mc.Context.Err(), "component context is cancelled after stop")
	}
}

func TestComponentSet_StartFailureStopsStarted(t *testing.T) {
	j := &journal{}
	registry := newStubRegistry(t, j)
	configs := config.ComponentConfigs{
		"a": stubConfig(true, ""),
		"b": stubConfig(true, `{"fail_start": true}`),
		"c": stubConfig(true, ""),
	}

	set, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.NoError(t, err)
	named(set)

	err = set.startAll(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")

	assert.Equal(t, []string{"init a", "start a", "init b", "start b", "stop a"}, j.list())
	assert.Equal(t, component.StateFailed, set.managed[1].State)
	assert.Equal(t, component.StateCreated, set.managed[2].State)
}

func TestComponentSet_StopErrorsJoined(t *testing.T) {
	j := &journal{}
	registry := newStubRegistry(t, j)
	configs := config.ComponentConfigs{
		"a": stubConfig(true, `{"fail_stop": true}`),
		"b": stubConfig(true, ""),
	}

	set, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.NoError(t, err)
	named(set)
	require.NoError(t, set.startAll(context.Background(), time.Second))

	err = set.stopAll(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop a")
	assert.Equal(t, []string{"init a", "start a", "init b", "start b", "stop b", "stop a"}, j.list())
}

func TestComponentSet_RegisterHealth(t *testing.T) {
	registry := newStubRegistry(t, &journal{})
	configs := config.ComponentConfigs{"proc": stubConfig(true, "")}

	set, err := createComponents(registry, configs, component.Dependencies{}, discardLogger())
	require.NoError(t, err)

	metrics := metric.NewMetricsRegistry()
	metrics.CoreMetrics().RecordMessageReceived("stub-meta")
	metrics.CoreMetrics().RecordMessageReceived("someone-else")

	monitor := health.NewMonitor()
	set.registerHealth(monitor, metrics)

	status := monitor.Check(appName)
	assert.True(t, status.IsHealthy())
	require.Len(t, status.SubStatuses, 1)
	sub := status.SubStatuses[0]
	assert.Equal(t, "proc", sub.Component)
	require.NotNil(t, sub.Metrics)
	assert.Equal(t, map[string]float64{"journaldconcat_messages_received_total": 1}, sub.Metrics.Counters)
}

func TestComponentSet_RegisterHealthWithoutCounters(t *testing.T) {
	registry := newStubRegistry(t, &journal{})
	set, err := createComponents(registry, config.ComponentConfigs{"proc": stubConfig(true, "")},
		component.Dependencies{}, discardLogger())
	require.NoError(t, err)

	monitor := health.NewMonitor()
	set.registerHealth(monitor, nil)

	status := monitor.Check(appName)
	require.Len(t, status.SubStatuses, 1)
	require.NotNil(t, status.SubStatuses[0].Metrics)
	assert.Nil(t, status.SubStatuses[0].Metrics.Counters)
}
