package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
	// TracerProvider overrides the global provider when set.
	TracerProvider trace.TracerProvider
}

// TracingWithConfig returns OpenTelemetry tracing middleware.
// It wraps otelgin, tags the span with the request ID and whether the call
// carried an Idempotency-Key, and marks 4xx/5xx responses as errors.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes enriches the server span created by TracingWithConfig and
// marks error responses. Place it after TracingWithConfig and RequestID.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		span.SetAttributes(attribute.Bool("print.idempotency_key", c.GetHeader("Idempotency-Key") != ""))

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if code, ok := c.Get(ErrorCodeKey); ok {
			if s, ok := code.(string); ok {
				span.SetAttributes(attribute.String("print.error_code", s))
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
