// Package metrics wraps the Prometheus collectors exported by tfapi. All
// collectors live on a private registry so tests can build as many
// instances as they like without duplicate-registration panics.
//
// Every method is safe to call on a nil *Metrics; packages that accept an
// optional *Metrics never need to guard their calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tfapi"

// Metrics holds the pre-defined metric vectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	TerraformRuns       *prometheus.CounterVec
	TerraformDuration   *prometheus.HistogramVec
	S3Operations        *prometheus.CounterVec
	S3Duration          *prometheus.HistogramVec
	TrackedBuckets      prometheus.Gauge
	SweepDeleted        prometheus.Counter
}

// New creates a Metrics with its own Prometheus registry. Go runtime and
// process collectors are registered alongside the tfapi metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TerraformRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terraform_runs_total",
			Help:      "Total number of terraform invocations",
		}, []string{"command", "result"}),
		TerraformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "terraform_run_duration_seconds",
			Help:      "Duration of terraform invocations in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"command"}),
		S3Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "s3_operations_total",
			Help:      "Total number of S3 API calls",
		}, []string{"operation", "result"}),
		S3Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "s3_operation_duration_seconds",
			Help:      "Duration of S3 API calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		TrackedBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_buckets",
			Help:      "Number of state buckets currently tracked by this instance",
		}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_buckets_deleted_total",
			Help:      "Total number of buckets removed by cleanup sweeps",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TerraformRuns,
		m.TerraformDuration,
		m.S3Operations,
		m.S3Duration,
		m.TrackedBuckets,
		m.SweepDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler that serves the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveTerraform records one terraform invocation.
func (m *Metrics) ObserveTerraform(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TerraformRuns.WithLabelValues(command, result(err)).Inc()
	m.TerraformDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveS3 records one S3 API call.
func (m *Metrics) ObserveS3(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.S3Operations.WithLabelValues(operation, result(err)).Inc()
	m.S3Duration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetTrackedBuckets sets the tracked-bucket gauge.
func (m *Metrics) SetTrackedBuckets(n int) {
	if m == nil {
		return
	}
	m.TrackedBuckets.Set(float64(n))
}

// AddSweepDeleted increments the sweep deletion counter.
func (m *Metrics) AddSweepDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepDeleted.Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
