package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/proclife/pkg/process"
)

// Config holds observability configuration
type Config struct {
	// ServiceName is the resource name spans are reported under
	ServiceName string

	// ServiceVersion is the version of the binary
	ServiceVersion string

	// EnableTracing enables OpenTelemetry tracing with the stdout exporter
	EnableTracing bool

	// TraceWriter receives exported spans. Default: os.Stderr
	TraceWriter io.Writer

	// MetricsNamespace prefixes every Prometheus metric
	MetricsNamespace string

	// MetricsTextfile is written in the Prometheus text format on Shutdown.
	// Empty disables the export.
	MetricsTextfile string
}

// Manager owns the tracer provider and metrics collector for one run
type Manager struct {
	config         *Config
	logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
	metrics        *process.PrometheusMetricsCollector
	shutdownOnce   sync.Once
}

// NewManager creates a new observability manager
func NewManager(config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = &Config{
			ServiceName:    "proclife",
			ServiceVersion: "0.0.0",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:  config,
		logger:  logger,
		metrics: process.NewPrometheusMetricsCollector(config.MetricsNamespace),
	}
}

// Initialize sets up tracing if enabled
func (m *Manager) Initialize(ctx context.Context) error {
	m.logger.Debug("initializing observability",
		"service_name", m.config.ServiceName,
		"enable_tracing", m.config.EnableTracing,
		"metrics_textfile", m.config.MetricsTextfile)

	if !m.config.EnableTracing {
		return nil
	}
	if err := m.initializeTracing(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	m.logger.Debug("OpenTelemetry tracing initialized", "exporter", "stdout")
	return nil
}

func (m *Manager) initializeTracing(ctx context.Context) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(m.config.ServiceName),
			semconv.ServiceVersion(m.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	w := m.config.TraceWriter
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(m.tracerProvider)
	return nil
}

// Tracer returns a tracer for the given name. With tracing disabled it is
// the global no-op tracer.
func (m *Manager) Tracer(name string) trace.Tracer {
	if m.tracerProvider != nil {
		return m.tracerProvider.Tracer(name)
	}
	return otel.Tracer(name)
}

// Metrics returns the collector to pass to launchers and pipes
func (m *Manager) Metrics() *process.PrometheusMetricsCollector {
	return m.metrics
}

// Shutdown flushes spans and writes the metrics textfile
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	m.shutdownOnce.Do(func() {
		if m.tracerProvider != nil {
			if err := m.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
			}
		}

		if m.config.MetricsTextfile != "" {
			if err := WriteTextfile(m.config.MetricsTextfile, m.metrics.Registry()); err != nil {
				errs = append(errs, err)
			} else {
				m.logger.Debug("metrics written", "path", m.config.MetricsTextfile)
			}
		}
	})

	return errors.Join(errs...)
}

// WriteTextfile writes every metric g gathers to path in the Prometheus
// text format, for pickup by a node exporter textfile collector
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
