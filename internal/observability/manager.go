// Package observability owns the OpenTelemetry providers and the business
// counters recorded by the order and payment flows.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/config"
)

const (
	serviceNamespace = "comanda"
	serviceVersion   = "1.0.0"
	stopTimeout      = 10 * time.Second
	dialTimeout      = 10 * time.Second
	stdoutInterval   = 30 * time.Second
)

// Module exposes the observability manager and business counters to Fx.
var Module = fx.Provide(NewManager, NewInstruments)

// Manager holds the trace and meter providers. Either may be nil when the
// corresponding signal is disabled or its exporter is unknown.
type Manager struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	scrape http.Handler
	cfg    config.Observability
	logger *zap.Logger
}

// NewManager builds the providers and installs them globally on start.
func NewManager(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	ctx := context.Background()
	res, err := newResource(ctx, cfg.Observability)
	if err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg.Observability, logger: logger}
	if m.cfg.EnableTracing {
		if err := m.setupTracing(ctx, res); err != nil {
			return nil, err
		}
	}
	if m.cfg.EnableMetrics {
		if err := m.setupMetrics(res); err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			m.install()
			return nil
		},
		OnStop: m.Shutdown,
	})
	return m, nil
}

func newResource(ctx context.Context, obs config.Observability) (*sdkresource.Resource, error) {
	return sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceVersion(serviceVersion),
			attribute.String("deployment.environment", obs.Environment),
		),
	)
}

func (m *Manager) install() {
	if m.tracer != nil {
		otel.SetTracerProvider(m.tracer)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}
	if m.meter != nil {
		otel.SetMeterProvider(m.meter)
	}
}

// Shutdown flushes both providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	var err error
	if m.tracer != nil {
		err = errors.Join(err, m.tracer.Shutdown(ctx))
	}
	if m.meter != nil {
		err = errors.Join(err, m.meter.Shutdown(ctx))
	}
	return err
}

// TracingEnabled reports whether spans are exported.
func (m *Manager) TracingEnabled() bool {
	return m.tracer != nil
}

// MetricsEnabled reports whether metrics are exported.
func (m *Manager) MetricsEnabled() bool {
	return m.meter != nil
}

// MetricsHandler serves the Prometheus scrape endpoint. It is nil unless the
// prometheus exporter is selected.
func (m *Manager) MetricsHandler() http.Handler {
	return m.scrape
}

// PrometheusPath returns the configured scrape path.
func (m *Manager) PrometheusPath() string {
	return m.cfg.PrometheusPath
}

func (m *Manager) setupTracing(ctx context.Context, res *sdkresource.Resource) error {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch m.cfg.TraceExporter {
	case "", "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlpExporter(ctx, m.cfg)
	case "none":
		return nil
	default:
		m.logger.Warn("unknown trace exporter, tracing off", zap.String("exporter", m.cfg.TraceExporter))
		return nil
	}
	if err != nil {
		return err
	}

	m.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.cfg.TraceSampling))),
	)
	return nil
}

func otlpExporter(ctx context.Context, obs config.Observability) (sdktrace.SpanExporter, error) {
	if obs.TraceEndpoint == "" {
		return nil, fmt.Errorf("OBS_OTLP_ENDPOINT must be set for the otlp exporter")
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(obs.TraceEndpoint)}
	if obs.TraceInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return otlptracegrpc.New(ctx, opts...)
}

func (m *Manager) setupMetrics(res *sdkresource.Resource) error {
	var reader sdkmetric.Reader
	switch m.cfg.MetricsExporter {
	case "prometheus":
		// Private registry: one process may start several managers.
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return err
		}
		reader = exporter
		m.scrape = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return err
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(stdoutInterval))
	case "none":
		return nil
	default:
		m.logger.Warn("unknown metrics exporter, metrics off", zap.String("exporter", m.cfg.MetricsExporter))
		return nil
	}

	m.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	return nil
}
