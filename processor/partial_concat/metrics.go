package partialconcat

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/journaldconcat/metric"
)

// Flush triggers, used as the trigger label
const (
	triggerComplete = "complete"
	triggerTimeout  = "timeout"
	triggerShutdown = "shutdown"
)

// concatMetrics holds Prometheus metrics for one processor instance. A nil
// *concatMetrics records nothing.
type concatMetrics struct {
	component string
	core      *metric.Metrics

	records        *prometheus.CounterVec   // by kind: partial, complete, passthrough, diagnostic
	flushes        *prometheus.CounterVec   // by trigger
	fragments      *prometheus.HistogramVec // fragments joined per flush
	pendingStreams *prometheus.GaugeVec
	errors         *prometheus.CounterVec // by error_type
}

func newConcatMetrics(registry *metric.MetricsRegistry, componentName string) (*concatMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &concatMetrics{
		component: componentName,
		core:      registry.CoreMetrics(),

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journaldconcat",
			Subsystem: "partial_concat",
			Name:      "records_total",
			Help:      "Records processed, by kind",
		}, []string{"component", "kind"}),

		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journaldconcat",
			Subsystem: "partial_concat",
			Name:      "flushes_total",
			Help:      "Merged records produced, by what triggered the flush",
		}, []string{"component", "trigger"}),

		fragments: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "journaldconcat",
			Subsystem: "partial_concat",
			Name:      "fragments_per_flush",
			Help:      "Number of records joined into each merged record",
			Buckets:   []float64{2, 3, 4, 8, 16, 32, 64, 128},
		}, []string{"component"}),

		pendingStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "journaldconcat",
			Subsystem: "partial_concat",
			Name:      "pending_streams",
			Help:      "Streams with buffered fragments",
		}, []string{"component"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journaldconcat",
			Subsystem: "partial_concat",
			Name:      "errors_total",
			Help:      "Processing errors, by type",
		}, []string{"component", "error_type"}), // decode, record, publish, emit
	}

	if err := registry.RegisterCounterVec("partial_concat", "records_total", m.records); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("partial_concat", "flushes_total", m.flushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("partial_concat", "fragments_per_flush", m.fragments); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("partial_concat", "pending_streams", m.pendingStreams); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("partial_concat", "errors_total", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *concatMetrics) recordRecord(kind string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(m.component, kind).Inc()
}

func (m *concatMetrics) recordFlush(trigger string, fragments int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(m.component, trigger).Inc()
	m.fragments.WithLabelValues(m.component).Observe(float64(fragments))
}

func (m *concatMetrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingStreams.WithLabelValues(m.component).Set(float64(n))
}

func (m *concatMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(m.component, errorType).Inc()
	m.core.RecordError(m.component, errorType)
}

func (m *concatMetrics) recordReceived() {
	if m == nil {
		return
	}
	m.core.RecordMessageReceived(m.component)
}

func (m *concatMetrics) recordPublished(subject string) {
	if m == nil {
		return
	}
	m.core.RecordMessagePublished(m.component, subject)
}

func (m *concatMetrics) recordStatus(status int) {
	if m == nil {
		return
	}
	m.core.RecordComponentStatus(m.component, status)
}
