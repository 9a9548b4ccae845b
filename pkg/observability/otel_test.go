package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), OTelConfig{Enabled: false}, NewLogger("info", &bytes.Buffer{}))

	assert.NoError(t, err)
	assert.Nil(t, tp)
}

// OTLP exporters connect lazily, so a missing collector is not an error
func TestInitTracing_Enabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "opsboard-rbac-test",
		ServiceVersion: "1.0.0",
		Insecure:       true,
	}

	tp, err := InitTracing(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer ShutdownTracing(context.Background(), tp, logger)

	assert.Equal(t, tp, otel.GetTracerProvider())
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	assert.Contains(t, buf.String(), "OpenTelemetry initialized successfully")
}

func TestShutdownTracing_Nil(t *testing.T) {
	assert.NoError(t, ShutdownTracing(context.Background(), nil, nil))
}

func TestShutdownTracing_Twice(t *testing.T) {
	tp := sdktrace.NewTracerProvider()

	assert.NoError(t, ShutdownTracing(context.Background(), tp, nil))
	// the sdk reports a second shutdown as an error
	assert.Error(t, ShutdownTracing(context.Background(), tp, logrus.New()))
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	logger := logrus.New()
	assert.Equal(t, logrus.FieldLogger(logger), WithTraceContext(context.Background(), logger))
}

func TestWithTraceContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	WithTraceContext(ctx, logger).Info("hello")

	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
	assert.Contains(t, buf.String(), span.SpanContext().SpanID().String())
}

func TestWithTraceContext_InvalidSpanContext(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
	logger := logrus.New()

	assert.Equal(t, logrus.FieldLogger(logger), WithTraceContext(ctx, logger))
}
