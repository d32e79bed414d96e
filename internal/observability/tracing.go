package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	serviceName    = "app-verification"
	serviceVersion = "1.0"

	// instrumentationPrefix namespaces every tracer handed out by Tracer
	instrumentationPrefix = "github.com/nextmind-ai/app-verification/"
)

var tracerProvider *sdktrace.TracerProvider

// TracerSettings describes how spans are sampled and where they are exported
type TracerSettings struct {
	Endpoint    string
	Environment string
	SampleRatio float64
}

// TracerSettingsFromConfig reads the tracer settings from the loaded config
func TracerSettingsFromConfig(cfg *config.Config) TracerSettings {
	return TracerSettings{
		Endpoint:    cfg.TracingEndpoint,
		Environment: cfg.Environment,
		SampleRatio: cfg.TracingSampleRatio,
	}
}

// newSampler honors the caller's sampling decision and samples root spans by ratio
func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

func newResource(ctx context.Context, s TracerSettings) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.DeploymentEnvironmentKey.String(s.Environment),
		),
	)
}

// newTracerProvider builds a provider exporting over OTLP gRPC. The exporter
// dials lazily, so an unreachable collector surfaces only on export.
func newTracerProvider(ctx context.Context, s TracerSettings) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(s.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(serviceName+"/"+serviceVersion)),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := newResource(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(s.SampleRatio)),
	), nil
}

// InitTracer installs the global tracer provider and W3C propagators.
// It does nothing when tracing is disabled.
func InitTracer(ctx context.Context) error {
	cfg := config.AppConfig
	if !cfg.TracingEnabled {
		logging.Logger.Info("tracing is disabled")
		return nil
	}

	settings := TracerSettingsFromConfig(cfg)
	tp, err := newTracerProvider(ctx, settings)
	if err != nil {
		return err
	}
	tracerProvider = tp

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logging.Logger.Info("tracer initialized",
		zap.String("endpoint", settings.Endpoint),
		zap.Float64("sample_ratio", settings.SampleRatio))
	return nil
}

// Tracer returns a named tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + name)
}

// ShutdownTracer flushes pending spans and releases the provider
func ShutdownTracer() {
	if tracerProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logging.Logger.Error("failed to shutdown tracer provider", zap.Error(err))
	}
	tracerProvider = nil
}
