// Package prometheus exports service operation metrics through
// client_golang collectors on a dedicated registry.
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anchorgen"

// Recorder implements core.MetricsRecorder.
type Recorder struct {
	reg       *prometheus.Registry
	total     *prometheus.CounterVec   // anchorgen_operations_total
	durations *prometheus.HistogramVec // anchorgen_operation_duration_seconds
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	buckets        []float64
	processMetrics bool
}

// WithBuckets overrides the duration histogram buckets.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		if len(b) > 0 {
			o.buckets = b
		}
	}
}

// WithProcessMetrics also registers the Go runtime and process collectors.
func WithProcessMetrics() Option {
	return func(o *options) { o.processMetrics = true }
}

// New constructs a Recorder with its own registry.
func New(opts ...Option) (*Recorder, error) {
	o := options{buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&o)
	}
	reg := prometheus.NewRegistry()

	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations, partitioned by operation and status.",
		},
		[]string{"operation", "status"},
	)
	durations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations in seconds.",
			Buckets:   o.buckets,
		},
		[]string{"operation", "status"},
	)
	if err := reg.Register(total); err != nil {
		return nil, fmt.Errorf("prometheus: register operations counter: %w", err)
	}
	if err := reg.Register(durations); err != nil {
		return nil, fmt.Errorf("prometheus: register duration histogram: %w", err)
	}
	if o.processMetrics {
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("prometheus: register go collector: %w", err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("prometheus: register process collector: %w", err)
		}
	}
	return &Recorder{reg: reg, total: total, durations: durations}, nil
}

// Observe records an operation outcome. Empty operation names are ignored.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.total.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// Registry exposes the underlying registry, e.g. for pushing or gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
