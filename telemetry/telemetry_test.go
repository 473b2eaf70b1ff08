package telemetry

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type TelemetrySuite struct {
	suite.Suite
	ctx context.Context
}

func (s *TelemetrySuite) SetupTest() {
	s.ctx = context.Background()
}

func TestTelemetrySuite(t *testing.T) {
	suite.Run(t, new(TelemetrySuite))
}

func (s *TelemetrySuite) TestNew() {
	tel, err := New(s.ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Debug:          true,
		Enabled:        true,
		TraceWriter:    io.Discard,
		MetricWriter:   io.Discard,
	})
	s.NoError(err)
	s.True(tel.IsEnabled())
	s.NotNil(tel.tp)
	s.NotNil(tel.mp)
	s.NotNil(tel.messageDuration)
	s.NotNil(tel.dropCounter)
	s.NoError(tel.Shutdown(s.ctx))

	tel, err = New(s.ctx, Config{ServiceName: "test-service", Enabled: false})
	s.NoError(err)
	s.False(tel.IsEnabled())
}

func (s *TelemetrySuite) TestNewNoop() {
	tel, err := NewNoop()
	s.NoError(err)
	s.False(tel.IsEnabled())
	s.Nil(tel.tp)

	ctx, span := tel.StartSpan(s.ctx, "noop")
	s.Equal(s.ctx, ctx)
	span.End()

	s.Nil(tel.Inject(s.ctx, nil))
	tel.RecordMessage(s.ctx, time.Millisecond, "multiply", "ok")
	tel.RecordDrop(s.ctx, "unknown", "unhandled")
	s.NoError(tel.Shutdown(s.ctx))
}

func (s *TelemetrySuite) TestSpanPropagation() {
	testTel := NewTestTelemetry(s.T())
	defer testTel.Shutdown(s.ctx)

	tel := testTel.Telemetry(s.T())

	ctx, span := tel.StartSpan(s.ctx, "Controller.Dispatch multiply")
	s.NotEqual(s.ctx, ctx)
	metadata := tel.Inject(ctx, nil)
	s.Contains(metadata, "traceparent")
	span.End()

	remote := tel.Extract(s.ctx, metadata)
	_, child := tel.StartSpan(remote, "Worker.OnMessage multiply")
	child.End()

	spans := testTel.Spans()
	s.Len(spans, 2)
	s.Equal(spans[0].SpanContext.TraceID(), spans[1].SpanContext.TraceID())
}

func (s *TelemetrySuite) TestRecord() {
	testTel := NewTestTelemetry(s.T())
	defer testTel.Shutdown(s.ctx)

	tel := testTel.Telemetry(s.T())
	tel.RecordMessage(s.ctx, 100*time.Millisecond, "multiply", "ok")
	tel.RecordDrop(s.ctx, "divide", "unhandled")

	var rm metricdata.ResourceMetrics
	s.NoError(testTel.GetReader().Collect(s.ctx, &rm))
	s.Require().Len(rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	s.True(names["message_duration"])
	s.True(names["dropped_messages"])
}

func (s *TelemetrySuite) TestNewFromEnv() {
	os.Setenv("OTEL_ENABLED", "false")
	defer os.Unsetenv("OTEL_ENABLED")

	tel, err := NewFromEnv(s.ctx, "test-service", "1.0.0")
	s.NoError(err)
	s.False(tel.IsEnabled())
}

func (s *TelemetrySuite) TestGetEnvOrDefault() {
	os.Setenv("TEST_ENV_VAR", "test-value")
	s.Equal("test-value", getEnvOrDefault("TEST_ENV_VAR", "default-value"))

	os.Unsetenv("TEST_ENV_VAR")
	s.Equal("default-value", getEnvOrDefault("TEST_ENV_VAR", "default-value"))
}
