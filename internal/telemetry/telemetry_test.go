package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/nodegraph/config"
	"github.com/BaSui01/nodegraph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "nodegraph-test",
		SampleRate:   0.5,
	}
	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Tracer())
}

func TestInit_EngineSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	recorder := tracetest.NewSpanRecorder()

	cfg := config.TelemetryConfig{Enabled: true, ServiceName: "nodegraph-test", SampleRate: 1}
	p, err := Init(cfg, zaptest.NewLogger(t), WithSpanExporter(tracetest.NewInMemoryExporter()), WithoutGlobal())
	require.NoError(t, err)
	p.tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK, "WithoutGlobal must leave the global provider alone")

	step := workflow.MustNode("step", func(context.Context, *workflow.RunContext) error { return nil })
	wf, err := workflow.NewWorkflow("traced", workflow.MustChain(step))
	require.NoError(t, err)

	engine := workflow.NewEngine(workflow.WithTracer(p.Tracer()), workflow.WithLogger(zaptest.NewLogger(t)))
	_, err = engine.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "node.step", spans[0].Name())
	assert.Equal(t, "workflow.traced", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope().Name)
}

func TestBuildVersion(t *testing.T) {
	v := buildVersion()
	assert.NotEmpty(t, v)
	assert.Equal(t, "dev", v)
}
