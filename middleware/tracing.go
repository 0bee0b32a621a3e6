package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

const HeaderXTraceID = "X-Trace-ID"

// Tracing 用 otelgin 为每个请求开启服务端 Span，并把 trace id 写入响应头。
// 必须放在 RequestLogger 之前，访问日志才能带上 trace_id。
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceIDHeader 在 Tracing 之后使用。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			c.Header(HeaderXTraceID, sc.TraceID().String())
		}
		c.Next()
	}
}
