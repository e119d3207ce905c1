// Package telemetry initializes OpenTelemetry tracing for the agent
// process, following the same environment-variable-driven bootstrap
// used elsewhere in this codebase.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Config controls tracer provider construction.
type Config struct {
	ServiceName   string
	Version       string
	Environment   string
	OTLPEndpoint  string
	Enabled       bool
	SamplingRatio float64
}

// ConfigFromEnv reads OTEL_* environment variables over built-in
// defaults: enabled, endpoint http://localhost:4318, environment
// "development", sampling ratio 1.0.
func ConfigFromEnv(serviceName, version string) Config {
	cfg := Config{
		ServiceName:   serviceName,
		Version:       version,
		Environment:   "development",
		OTLPEndpoint:  "http://localhost:4318",
		Enabled:       true,
		SamplingRatio: 1.0,
	}
	if v := getenv("OTEL_ENABLED"); v != "" {
		cfg.Enabled = v != "false"
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := getenv("OTEL_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := getenv("OTEL_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SamplingRatio = ratio
		}
	}
	if v := getenv("OTEL_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	return cfg
}

// Provider wraps the process-global TracerProvider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds an OTLP-HTTP-exporting TracerProvider and installs it
// as the global provider/propagator.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(stripProtocol(cfg.OTLPEndpoint)),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRatio >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRatio <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider, bounded to 5s.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

func stripProtocol(endpoint string) string {
	if strings.HasPrefix(endpoint, "https://") {
		return endpoint[len("https://"):]
	}
	if strings.HasPrefix(endpoint, "http://") {
		return endpoint[len("http://"):]
	}
	return endpoint
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
