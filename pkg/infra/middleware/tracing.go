package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
)

const httpTracerName = "bhasha/http"

// Tracing 为每个请求开启 server span，并从请求头提取上游的 trace 上下文。
// span 名称使用路由模板，避免路径参数造成高基数。
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.StartSpan(ctx, httpTracerName, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer))
		defer tracing.EndSpan(span)

		if id := common.GetRequestID(ctx); id != "" {
			tracing.AddSpanAttributes(ctx, tracing.String("request.id", id))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		tracing.AddSpanAttributes(ctx,
			tracing.String("http.method", c.Request.Method),
			tracing.String("http.route", route),
			tracing.Int("http.status_code", status),
		)
		if owner := common.GetOwnerID(c.Request.Context()); owner != "" {
			tracing.AddSpanAttributes(ctx, tracing.String("enduser.id", owner))
		}
		if status >= 500 {
			tracing.RecordError(ctx, fmt.Errorf("http %d", status))
		}
	}
}
