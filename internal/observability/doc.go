// Package observability provides logging, metrics, and tracing
// for the mTLS gateway.
//
// Structured logging is backed by zap, request metrics by Prometheus,
// and distributed tracing by OpenTelemetry with an OTLP gRPC exporter.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("request admitted",
//	    observability.String("policy", "mtls"),
//	)
//
// # Tracing
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "avapigw-mtls",
//	    OTLPEndpoint: "localhost:4317",
//	    SamplingRate: 1.0,
//	    Enabled:      true,
//	})
package observability
