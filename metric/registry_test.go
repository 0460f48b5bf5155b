package metric

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/journaldconcat/errors"
)

func gathered(t *testing.T, registry *MetricsRegistry, name string) bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())

	registry.CoreMetrics().RecordMessageReceived("partial-concat")
	assert.True(t, gathered(t, registry, "journaldconcat_messages_received_total"))
}

func TestMetricsRegistry_RegisterCounterVec(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_records_total",
		Help: "A test counter",
	}, []string{"outcome"})

	require.NoError(t, registry.RegisterCounterVec("test-service", "records", counter))
	counter.WithLabelValues("merged").Inc()

	assert.True(t, gathered(t, registry, "test_records_total"))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_pending", Help: "pending"})
	require.NoError(t, registry.RegisterGauge("svc", "pending", gauge))

	err := registry.RegisterGauge("svc", "pending", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_pending", Help: "pending"})
	err = registry.RegisterGauge("other-svc", "pending", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "prometheus name conflict is invalid, not fatal")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_flushes_total", Help: "flushes"})
	require.NoError(t, registry.RegisterCounter("svc", "flushes", counter))

	assert.True(t, registry.Unregister("svc", "flushes"))
	assert.False(t, registry.Unregister("svc", "flushes"))
	require.NoError(t, registry.RegisterCounter("svc", "flushes", counter))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name: "test_concurrent_total",
				Help: "concurrent",
				ConstLabels: prometheus.Labels{"n": string(rune('a' + i))},
			})
			errs <- registry.RegisterCounter("svc", string(rune('a'+i)), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordNATSStatus(true)

	server := NewServer(0, "", registry)
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "journaldconcat_nats_connected 1"))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_CustomHealthHandler(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	server.SetHealthHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRegistry_ComponentCounters(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()
	core.RecordMessageReceived("partial-concat")
	core.RecordMessageReceived("partial-concat")
	core.RecordMessagePublished("partial-concat", "logs.concat")
	core.RecordMessagePublished("partial-concat", "logs.concat.timeout")
	core.RecordMessagePublished("other", "logs.concat")

	counters, err := registry.ComponentCounters("partial-concat")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"journaldconcat_messages_received_total":  2,
		"journaldconcat_messages_published_total": 2,
	}, counters)

	counters, err = registry.ComponentCounters("missing")
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestServer_HandlerTextFormat(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordMessageReceived("partial-concat")

	rec := httptest.NewRecorder()
	NewServer(0, "", registry).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)

	parsed := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		parsed = append(parsed, mf)
	}
	assert.Equal(t, map[string]float64{"journaldconcat_messages_received_total": 1},
		componentCounters(parsed, "partial-concat"))
}
