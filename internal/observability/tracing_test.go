package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected string
	}{
		{name: "full", ratio: 1, expected: "ParentBased{root:AlwaysOnSampler"},
		{name: "above one", ratio: 3, expected: "ParentBased{root:AlwaysOnSampler"},
		{name: "zero", ratio: 0, expected: "ParentBased{root:AlwaysOffSampler"},
		{name: "negative", ratio: -0.5, expected: "ParentBased{root:AlwaysOffSampler"},
		{name: "fraction", ratio: 0.25, expected: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := newSampler(tt.ratio).Description()
			assert.True(t, strings.HasPrefix(desc, tt.expected), desc)
		})
	}
}

func TestTracerSettingsFromConfig(t *testing.T) {
	settings := TracerSettingsFromConfig(&config.Config{
		TracingEndpoint:    "collector:4317",
		Environment:        "staging",
		TracingSampleRatio: 0.1,
	})

	assert.Equal(t, TracerSettings{Endpoint: "collector:4317", Environment: "staging", SampleRatio: 0.1}, settings)
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), TracerSettings{Environment: "staging"})
	require.NoError(t, err)

	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, serviceName, values[string(semconv.ServiceNameKey)])
	assert.Equal(t, serviceVersion, values[string(semconv.ServiceVersionKey)])
	assert.Equal(t, "staging", values[string(semconv.DeploymentEnvironmentKey)])
	assert.NotEmpty(t, values[string(semconv.HostNameKey)])
}

func TestTracer_UsesGlobalProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := Tracer("registry").Start(context.Background(), "registry.verify")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "registry.verify", ended[0].Name())
	assert.Equal(t, instrumentationPrefix+"registry", ended[0].InstrumentationScope().Name)
}

func TestInitTracer_Disabled(t *testing.T) {
	config.AppConfig = &config.Config{TracingEnabled: false}

	require.NoError(t, InitTracer(context.Background()))
	assert.Nil(t, tracerProvider)
}

func TestInitTracer_Enabled(t *testing.T) {
	config.AppConfig = &config.Config{
		TracingEnabled:     true,
		TracingEndpoint:    "localhost:4317",
		TracingSampleRatio: 0.5,
		Environment:        "test",
	}
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	require.NoError(t, InitTracer(context.Background()))
	require.NotNil(t, tracerProvider)
	assert.Same(t, tracerProvider, otel.GetTracerProvider())

	assert.NotPanics(t, ShutdownTracer)
	assert.Nil(t, tracerProvider)
}

func TestShutdownTracer_NilProvider(t *testing.T) {
	tracerProvider = nil
	assert.NotPanics(t, ShutdownTracer)
}
