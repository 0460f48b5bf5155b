// Package metric provides Prometheus-based metrics collection and an HTTP
// endpoint for journaldconcat.
//
// The registry holds a small set of core metrics (component status, message
// counts, NATS connection health) and lets components register their own
// collectors under a service name. Server exposes everything in Prometheus
// text or OpenMetrics format.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// # Component Metrics
//
// Components register their collectors through MetricsRegistrar so that
// duplicate names are reported as invalid errors rather than panics:
//
//	flushes := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: "journaldconcat",
//	    Name:      "flushes_total",
//	}, []string{"component", "trigger"})
//	err := registry.RegisterCounterVec("partial-concat", "flushes", flushes)
//
// # Thread Safety
//
// MetricsRegistry and Server are safe for concurrent use.
package metric
