package process

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	// Launch metrics
	launches       *prometheus.CounterVec
	launchFailures *prometheus.CounterVec

	// Reap metrics
	reaps    *prometheus.CounterVec
	lifetime *prometheus.HistogramVec
	live     prometheus.Gauge

	// Pipe metrics
	pipeCloses       *prometheus.CounterVec
	pipeDoubleCloses *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "proclife"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_launches_total",
			Help:      "Total number of child processes launched",
		},
		[]string{"entry"},
	)

	pmc.launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_launch_failures_total",
			Help:      "Total number of launches that created no child",
		},
		[]string{"entry", "code"},
	)

	pmc.reaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_reaps_total",
			Help:      "Total number of child exit statuses collected",
		},
		[]string{"entry", "result"},
	)

	pmc.lifetime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_lifetime_seconds",
			Help:      "Time between launch and reap of a child process",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"entry"},
	)

	pmc.live = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_processes",
			Help:      "Current number of launched, unreaped children",
		},
	)

	pmc.pipeCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipe_closes_total",
			Help:      "Total number of pipe ends closed",
		},
		[]string{"end"},
	)

	pmc.pipeDoubleCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipe_double_closes_total",
			Help:      "Total number of attempts to close an already closed pipe end",
		},
		[]string{"end"},
	)

	pmc.registry.MustRegister(
		pmc.launches,
		pmc.launchFailures,
		pmc.reaps,
		pmc.lifetime,
		pmc.live,
		pmc.pipeCloses,
		pmc.pipeDoubleCloses,
	)

	return pmc
}

// ProcessLaunched records a successful launch
func (pmc *PrometheusMetricsCollector) ProcessLaunched(entry string) {
	pmc.launches.WithLabelValues(entry).Inc()
}

// LaunchFailed records a failed launch
func (pmc *PrometheusMetricsCollector) LaunchFailed(entry string, code ErrorCode) {
	pmc.launchFailures.WithLabelValues(entry, string(code)).Inc()
}

// ProcessReaped records a reaped child
func (pmc *PrometheusMetricsCollector) ProcessReaped(entry string, status ExitStatus, lifetime time.Duration) {
	result := "success"
	switch {
	case status.Signaled:
		result = "signaled"
	case !status.Success():
		result = "failure"
	}

	pmc.reaps.WithLabelValues(entry, result).Inc()
	if lifetime > 0 {
		pmc.lifetime.WithLabelValues(entry).Observe(lifetime.Seconds())
	}
}

// LiveProcesses records the number of unreaped children
func (pmc *PrometheusMetricsCollector) LiveProcesses(n int) {
	pmc.live.Set(float64(n))
}

// PipeClosed records a closed pipe end
func (pmc *PrometheusMetricsCollector) PipeClosed(end End) {
	pmc.pipeCloses.WithLabelValues(end.String()).Inc()
}

// PipeDoubleClose records a double close attempt
func (pmc *PrometheusMetricsCollector) PipeDoubleClose(end End) {
	pmc.pipeDoubleCloses.WithLabelValues(end.String()).Inc()
}

// Registry returns the Prometheus registry holding the collector's metrics
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}
