package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())
	assert.Equal(t, "avapigw-mtls", tracer.config.ServiceName)

	_, span := tracer.StartSpan(context.Background(), "noop")
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_BadOTLPCA(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		Enabled:      true,
		OTLPEndpoint: "collector:4317",
		OTLPCAFile:   "/nonexistent/ca.pem",
	})
	assert.ErrorContains(t, err, "failed to load OTLP CA")
	assert.Nil(t, tracer)
}

func TestNilTracer(t *testing.T) {
	t.Parallel()

	var tracer *Tracer
	assert.False(t, tracer.Enabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(2).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), samplerFor(0.5).Description())
}

// Not parallel: installs a global propagator.
func TestTraceContextPropagation(t *testing.T) {
	oldProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(oldProp)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "outbound")
	req := httptest.NewRequest(http.MethodGet, "http://backend/", nil)
	InjectTraceContext(ctx, req)
	span.End()

	require.NotEmpty(t, req.Header.Get("traceparent"))

	extracted := ExtractTraceContext(context.Background(), req.Header)
	_, child := tp.Tracer("test").Start(extracted, "inbound")
	child.End()

	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())

	logCtx := ContextWithSpan(context.Background(), child)
	assert.Equal(t, child.SpanContext().TraceID().String(), TraceIDFromContext(logCtx))
	assert.Equal(t, child.SpanContext().SpanID().String(), SpanIDFromContext(logCtx))
}
