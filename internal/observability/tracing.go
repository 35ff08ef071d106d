package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// OTLP exporter defaults.
const (
	DefaultOTLPTimeout            = 10 * time.Second
	DefaultOTLPReconnectionPeriod = 10 * time.Second
	DefaultOTLPRetryInitial       = 1 * time.Second
	DefaultOTLPRetryMax           = 30 * time.Second
	DefaultOTLPRetryMaxElapsed    = 1 * time.Minute
)

// TracerConfig configures NewTracer.
type TracerConfig struct {
	ServiceName  string
	OTLPEndpoint string

	// OTLPCAFile, when set, verifies the collector over TLS with this CA
	// bundle. Otherwise the exporter connects in plaintext.
	OTLPCAFile string

	SamplingRate float64
	Enabled      bool
}

// Tracer owns the process tracer provider.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracerConfig
}

// NewTracer installs a global tracer provider exporting to the configured
// OTLP endpoint. A disabled config yields a Tracer backed by the current
// global provider and nothing is installed.
func NewTracer(cfg TracerConfig) (*Tracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "avapigw-mtls"
	}

	if !cfg.Enabled {
		return &Tracer{
			tracer: otel.Tracer(cfg.ServiceName),
			config: cfg,
		}, nil
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SamplingRate))),
	}

	if cfg.OTLPEndpoint != "" {
		transport := otlptracegrpc.WithInsecure()
		if cfg.OTLPCAFile != "" {
			creds, err := credentials.NewClientTLSFromFile(cfg.OTLPCAFile, "")
			if err != nil {
				return nil, fmt.Errorf("failed to load OTLP CA: %w", err)
			}
			transport = otlptracegrpc.WithTLSCredentials(creds)
		}

		exporter, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			transport,
			otlptracegrpc.WithTimeout(DefaultOTLPTimeout),
			otlptracegrpc.WithReconnectionPeriod(DefaultOTLPReconnectionPeriod),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: DefaultOTLPRetryInitial,
				MaxInterval:     DefaultOTLPRetryMax,
				MaxElapsedTime:  DefaultOTLPRetryMaxElapsed,
			}),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		config:   cfg,
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t != nil && t.config.Enabled
}

// StartSpan starts a span using the gateway tracer.
func (t *Tracer) StartSpan(
	ctx context.Context,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ContextWithSpan copies the span's trace and span ids into ctx so the
// logger can pick them up.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	sc := span.SpanContext()
	if sc.HasTraceID() {
		ctx = ContextWithTraceID(ctx, sc.TraceID().String())
	}
	if sc.HasSpanID() {
		ctx = ContextWithSpanID(ctx, sc.SpanID().String())
	}
	return ctx
}

// ExtractTraceContext reads propagated trace headers from an inbound request.
func ExtractTraceContext(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectTraceContext writes trace headers onto an outgoing request.
func InjectTraceContext(ctx context.Context, r *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))
}
