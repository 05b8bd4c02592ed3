// Package metrics exposes Prometheus metrics for storage operations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theirix/simple-file-repository/interfaces"
)

// Operation results recorded in the result label.
const (
	ResultOK             = "ok"
	ResultNotFound       = "not_found"
	ResultAlreadyExists  = "already_exists"
	ResultNotInitialized = "not_initialized"
	ResultInvalid        = "invalid"
	ResultError          = "error"
)

type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates a metrics server listening on addr. Metric names are prefixed with namespace.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()

	m := &MetricsServer{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage operations",
		}, []string{"database", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"database", "operation"}),
	}

	for _, c := range []prometheus.Collector{
		m.operations,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return m, nil
}

// Handler serves the registered metrics.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation records one storage operation and its outcome.
func (m *MetricsServer) ObserveOperation(database, operation string, err error, duration time.Duration) {
	m.operations.WithLabelValues(database, operation, Result(err)).Inc()
	m.duration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// Result maps an operation error onto the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, interfaces.ErrUnknownDatabase):
		return ResultNotFound
	case errors.Is(err, interfaces.ErrAlreadyExists):
		return ResultAlreadyExists
	case errors.Is(err, interfaces.ErrNotInitialized):
		return ResultNotInitialized
	case errors.Is(err, interfaces.ErrInvalidParams),
		errors.Is(err, interfaces.ErrNoExtension),
		errors.Is(err, interfaces.ErrConverterUnavailable):
		return ResultInvalid
	default:
		return ResultError
	}
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
