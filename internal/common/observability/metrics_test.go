package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"admission-workers/internal/common/config"
)

func newObservability(t *testing.T, opts ...Option) *Observability {
	t.Helper()
	prev := otel.GetTracerProvider()
	// the prometheus exporter may already be registered by another test; tracing is installed regardless
	obs, _ := New("test-service", opts...)
	require.NotNil(t, obs)
	t.Cleanup(func() {
		obs.Shutdown()
		otel.SetTracerProvider(prev)
	})
	return obs
}

func TestNew_InstallsTracerProvider(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	obs := newObservability(t, WithSpanProcessor(rec))

	assert.Same(t, obs.TracerProvider(), otel.GetTracerProvider())

	_, span := obs.StartSpan(context.Background(), "admission.reap", attribute.Bool("reconcile", true))
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "admission.reap", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("reconcile", true))

	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "test-service", service)
}

func TestNew_GlobalTracerReachesProvider(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	newObservability(t, WithSpanProcessor(rec))

	_, span := otel.Tracer("admission-workers/finalize").Start(context.Background(), "admission.finalize")
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "admission.finalize", rec.Ended()[0].Name())
}

func TestWithSampleRatio(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	obs := newObservability(t, WithSpanProcessor(rec), WithSampleRatio(1e-12))

	_, span := obs.StartSpan(context.Background(), "admission.reap")
	span.End()

	assert.False(t, span.SpanContext().IsSampled())
	assert.Empty(t, rec.Ended())
}

func TestStdoutExporterFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewSpanExporter(context.Background(), config.TracingConfig{Exporter: "stdout"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, exp)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	obs, _ := New("test-service", WithSpanExporter(exp))

	_, span := obs.StartSpan(context.Background(), "admission.finalize")
	span.End()
	obs.Shutdown()

	assert.Contains(t, buf.String(), "admission.finalize")
}

func TestNewSpanExporter(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.TracingConfig
		wantNil bool
		wantErr bool
	}{
		{name: "empty means none", cfg: config.TracingConfig{}, wantNil: true},
		{name: "none", cfg: config.TracingConfig{Exporter: "none"}, wantNil: true},
		{name: "otlp", cfg: config.TracingConfig{Exporter: "otlp", Endpoint: "localhost:4317", Insecure: true}},
		{name: "otlp without endpoint", cfg: config.TracingConfig{Exporter: "otlp"}, wantErr: true},
		{name: "unknown", cfg: config.TracingConfig{Exporter: "zipkin"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := NewSpanExporter(ctx, tt.cfg, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, exp)
				return
			}
			require.NotNil(t, exp)
			assert.NoError(t, exp.Shutdown(ctx))
		})
	}
}

func TestTracingOptions_RejectsUnknownExporter(t *testing.T) {
	_, err := TracingOptions(context.Background(), config.TracingConfig{Exporter: "zipkin"})
	assert.Error(t, err)
}
