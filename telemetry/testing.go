package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry holds in-memory OpenTelemetry providers for tests.
type TestTelemetry struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	mr       *sdkmetric.ManualReader
	recorder *tracetest.SpanRecorder
}

// NewTestTelemetry creates a new TestTelemetry instance for testing
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	mr := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(mr))
	otel.SetMeterProvider(mp)

	return &TestTelemetry{
		tp:       tp,
		mp:       mp,
		mr:       mr,
		recorder: recorder,
	}
}

// Telemetry returns an enabled Telemetry backed by the test providers.
func (tt *TestTelemetry) Telemetry(t *testing.T) *Telemetry {
	t.Helper()

	tel, err := newTelemetry(tt.tp, tt.mp, tt.tp.Tracer(instrumentationName), true)
	if err != nil {
		t.Fatalf("create test telemetry: %v", err)
	}
	return tel
}

// Shutdown gracefully shuts down the test telemetry providers
func (tt *TestTelemetry) Shutdown(ctx context.Context) error {
	if err := tt.tp.Shutdown(ctx); err != nil {
		return err
	}
	return tt.mp.Shutdown(ctx)
}

// GetReader returns the metric reader for testing
func (tt *TestTelemetry) GetReader() *sdkmetric.ManualReader {
	return tt.mr
}

// Spans returns the spans ended so far.
func (tt *TestTelemetry) Spans() tracetest.SpanStubs {
	return tracetest.SpanStubsFromReadOnlySpans(tt.recorder.Ended())
}
