package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xizhibei/go-offload"

// Telemetry holds OpenTelemetry components
type Telemetry struct {
	tp              *sdktrace.TracerProvider
	mp              *sdkmetric.MeterProvider
	tracer          trace.Tracer
	meter           metric.Meter
	messageDuration metric.Float64Histogram
	dropCounter     metric.Int64Counter
	enabled         bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string

	TraceWriter  io.Writer
	MetricWriter io.Writer
	Debug        bool
	Enabled      bool
}

// New creates a new Telemetry instance. A disabled config yields a no-op instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.TraceWriter == nil {
		cfg.TraceWriter = os.Stdout
	}

	if cfg.MetricWriter == nil {
		cfg.MetricWriter = os.Stdout
	}

	var traceExporter sdktrace.SpanExporter
	if cfg.Debug {
		traceExporter, err = stdouttrace.New(
			stdouttrace.WithWriter(cfg.TraceWriter),
			stdouttrace.WithPrettyPrint(),
		)
	} else {
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	var metricExporter sdkmetric.Exporter
	if cfg.Debug {
		enc := json.NewEncoder(cfg.MetricWriter)
		enc.SetIndent("", "  ")

		metricExporter, err = stdoutmetric.New(
			stdoutmetric.WithEncoder(enc),
			stdoutmetric.WithoutTimestamps(),
		)
	} else {
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "message_duration"},
				sdkmetric.Stream{
					Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
						Boundaries: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
					},
				},
			),
		),
	)
	otel.SetMeterProvider(mp)

	return newTelemetry(tp, mp, tp.Tracer(instrumentationName), true)
}

// NewFromEnv creates telemetry configured from OTEL_ENABLED, OTEL_DEBUG,
// ENVIRONMENT and OTEL_EXPORTER_OTLP_ENDPOINT.
func NewFromEnv(ctx context.Context, serviceName, serviceVersion string) (*Telemetry, error) {
	return New(ctx, Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Debug:          getEnvOrDefault("OTEL_DEBUG", "false") == "true",
		Enabled:        getEnvOrDefault("OTEL_ENABLED", "false") == "true",
	})
}

// NewNoop creates a Telemetry that records nothing and leaves contexts untouched.
func NewNoop() (*Telemetry, error) {
	mp := sdkmetric.NewMeterProvider()
	return newTelemetry(nil, mp, tracenoop.NewTracerProvider().Tracer(instrumentationName), false)
}

func newTelemetry(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, tracer trace.Tracer, enabled bool) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)

	messageDuration, err := meter.Float64Histogram(
		"message_duration",
		metric.WithDescription("Time between a message arriving and its reply being sent"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message duration histogram: %w", err)
	}

	dropCounter, err := meter.Int64Counter(
		"dropped_messages",
		metric.WithDescription("Number of messages dropped without a reply"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drop counter: %w", err)
	}

	return &Telemetry{
		tp:              tp,
		mp:              mp,
		tracer:          tracer,
		meter:           meter,
		messageDuration: messageDuration,
		dropCounter:     dropCounter,
		enabled:         enabled,
	}, nil
}

// IsEnabled reports whether telemetry is exported anywhere.
func (t *Telemetry) IsEnabled() bool {
	return t.enabled
}

// Shutdown gracefully shuts down the telemetry providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown trace provider: %w", err)
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}

// RecordMessage records how long a message took to handle.
func (t *Telemetry) RecordMessage(ctx context.Context, duration time.Duration, msgType string, status string) {
	t.messageDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("type", msgType),
		attribute.String("status", status),
	))
}

// RecordDrop counts a message that was dropped, with the reason.
func (t *Telemetry) RecordDrop(ctx context.Context, msgType string, reason string) {
	t.dropCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", msgType),
		attribute.String("reason", reason),
	))
}

// StartSpan starts a new span and returns the context and span
func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// Inject writes the trace context of ctx into metadata, allocating it if needed.
func (t *Telemetry) Inject(ctx context.Context, metadata map[string]string) map[string]string {
	if !t.enabled {
		return metadata
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(metadata))
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// Extract returns ctx enriched with the trace context found in metadata.
func (t *Telemetry) Extract(ctx context.Context, metadata map[string]string) context.Context {
	if len(metadata) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(metadata))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
