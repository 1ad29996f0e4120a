package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() *Options {
	return &Options{
		Enabled:        true,
		ServiceName:    "bhasha-test",
		ServiceVersion: "1.0.0",
		ExporterType:   ExporterNoop,
		SamplerType:    SamplerAlwaysOn,
		BatchTimeout:   5 * time.Second,
		BatchMaxSize:   512,
		ExportTimeout:  30 * time.Second,
		MaxQueueSize:   2048,
	}
}

func TestNewOptions(t *testing.T) {
	opts := NewOptions()
	assert.False(t, opts.Enabled)
	assert.Equal(t, "bhasha-rag", opts.ServiceName)
	assert.Equal(t, ExporterOTLPGRPC, opts.ExporterType)
	assert.Equal(t, SamplerParentBased, opts.SamplerType)
	assert.InDelta(t, 1.0, opts.SamplerRatio, 1e-9)
	assert.Empty(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{name: "未启用", mutate: func(o *Options) { o.Enabled = false; o.ServiceName = "" }},
		{name: "合法配置", mutate: func(o *Options) {}},
		{name: "缺少服务名", mutate: func(o *Options) { o.ServiceName = "" }, wantErr: true},
		{name: "OTLP 缺少 endpoint", mutate: func(o *Options) { o.ExporterType = ExporterOTLPGRPC }, wantErr: true},
		{name: "stdout 不需要 endpoint", mutate: func(o *Options) { o.ExporterType = ExporterStdout }},
		{name: "非法 exporter", mutate: func(o *Options) { o.ExporterType = "invalid" }, wantErr: true},
		{name: "非法 sampler", mutate: func(o *Options) { o.SamplerType = "invalid" }, wantErr: true},
		{name: "采样率越界", mutate: func(o *Options) { o.SamplerType = SamplerRatio; o.SamplerRatio = 1.5 }, wantErr: true},
		{name: "batch 超时为负", mutate: func(o *Options) { o.BatchTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(opts)
			errs := opts.Validate()
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestOptionsComplete(t *testing.T) {
	opts := &Options{}
	require.NoError(t, opts.Complete())
	assert.NotNil(t, opts.Headers)
	assert.NotNil(t, opts.ResourceAttributes)
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(&Options{})
	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer("test"))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderNoopExporter(t *testing.T) {
	provider, err := NewProvider(validOptions())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer("test").Start(context.Background(), "operation")
	assert.True(t, span.SpanContext().IsValid())
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	span.End()

	assert.NoError(t, provider.ForceFlush(context.Background()))
}

func TestNewProviderInvalid(t *testing.T) {
	opts := validOptions()
	opts.ExporterType = "invalid"
	_, err := NewProvider(opts)
	assert.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	provider, err := NewProvider(validOptions())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := StartSpan(context.Background(), "bhasha/test", "retrieve")
	defer EndSpan(span)

	AddSpanAttributes(ctx, String("rag.language", "bn"), Int("rag.top_k", 5))
	AddSpanEvent(ctx, "candidates", Int64("count", 3))
	RecordError(ctx, assert.AnError)
	assert.True(t, IsRecording(ctx))
	assert.NotEmpty(t, SpanIDFromContext(ctx))
}
