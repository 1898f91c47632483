// Package middleware provides HTTP middleware for the receiving service.
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
	ServiceName string
	Enabled     bool
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "erp-receiving",
		Enabled:     true,
	}
}

// Tracing returns the otelgin server-span middleware. The span name
// follows "METHOD route_pattern".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
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

// SpanStatus tags the current server span with the request ID and marks
// it as failed for 4xx and 5xx responses. It must run after Tracing and
// RequestID.
func SpanStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Next()

		markSpanStatus(span, c.Writer.Status())
	}
}

// annotateSpan adds the caller identity to the current server span
func annotateSpan(c *gin.Context, tenantID, deviceID string) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("device_id", deviceID),
	)
}

func markSpanStatus(span trace.Span, statusCode int) {
	if statusCode < http.StatusBadRequest {
		return
	}
	message := "Client Error"
	switch {
	case statusCode >= http.StatusInternalServerError:
		message = "Server Error"
	case statusCode == http.StatusNotFound:
		message = "Not Found"
	case statusCode == http.StatusUnprocessableEntity:
		message = "Rejected"
	}
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
}
