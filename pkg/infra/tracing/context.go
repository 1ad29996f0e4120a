package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan 使用全局 TracerProvider 开启一个 span。
// Provider 未启用时得到的是不导出的 span，调用方无需判断。
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// EndSpan 结束 span，span 可以为 nil。
func EndSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// AddSpanAttributes 为当前 span 添加属性。
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// AddSpanEvent 为当前 span 添加事件。
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError 记录错误并把 span 状态置为 Error。err 为 nil 时忽略。
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// IsRecording 当前 span 是否在记录。
func IsRecording(ctx context.Context) bool {
	return trace.SpanFromContext(ctx).IsRecording()
}

// TraceIDFromContext 返回当前 trace id，没有有效 span 时返回空串。
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanIDFromContext 返回当前 span id。
func SpanIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

func String(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func Int(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }

func Int64(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }

func Float64(key string, value float64) attribute.KeyValue { return attribute.Float64(key, value) }
