package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "deep-research-mcp"

var tracer oteltrace.Tracer = otel.Tracer(defaultServiceName)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Version      string `mapstructure:"version"`
}

// Initialize installs an OTLP tracer provider when enabled. The returned
// shutdown func flushes pending spans and is safe to call when disabled.
func Initialize(cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	tracer = otel.Tracer(cfg.ServiceName)

	if !cfg.Enabled {
		logger.Debug("Tracing disabled")
		return noop, nil
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(cfg.ServiceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}

// StartSpan starts a span with optional string attributes given as
// key/value pairs.
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, name)
	for i := 0; i+1 < len(kv); i += 2 {
		span.SetAttributes(attribute.String(kv[i], kv[i+1]))
	}
	return ctx, span
}

// StartHTTPSpan starts a client span for an outbound request.
func StartHTTPSpan(ctx context.Context, method, url string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, "HTTP "+method, oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFull(url),
	)
	return ctx, span
}

// W3CTraceparent renders the span in ctx as a traceparent header value, or
// "" when there is no valid span.
func W3CTraceparent(ctx context.Context) string {
	sc := oteltrace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("00-%s-%s-%02x", sc.TraceID().String(), sc.SpanID().String(), byte(sc.TraceFlags()))
}

// InjectTraceparent sets the traceparent header on req.
func InjectTraceparent(ctx context.Context, req *http.Request) {
	if tp := W3CTraceparent(ctx); tp != "" {
		req.Header.Set("traceparent", tp)
	}
}

// ParseTraceparent splits a version 00 traceparent header.
func ParseTraceparent(traceparent string) (traceID, spanID string, flags byte, valid bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return "", "", 0, false
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 {
		return "", "", 0, false
	}
	var f int
	if _, err := fmt.Sscanf(parts[3], "%02x", &f); err != nil {
		return "", "", 0, false
	}
	return parts[1], parts[2], byte(f), true
}
