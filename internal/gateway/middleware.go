package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const ctxKeyPrivileged = "privileged"

func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// AuthMiddleware validates X-API-Key and resolves the caller's privilege
// level. Privileged keys take the anonymous admission path; ordinary keys must
// identify an account per request. With no keys configured authentication is
// disabled and every caller is ordinary.
func AuthMiddleware(apiKeys, privilegedKeys []string) gin.HandlerFunc {
	ordinary := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		ordinary[k] = struct{}{}
	}
	privileged := make(map[string]struct{}, len(privilegedKeys))
	for _, k := range privilegedKeys {
		privileged[k] = struct{}{}
	}
	open := len(ordinary) == 0 && len(privileged) == 0

	return func(c *gin.Context) {
		if open {
			c.Set(ctxKeyPrivileged, false)
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			c.Abort()
			return
		}

		if _, ok := privileged[apiKey]; ok {
			c.Set(ctxKeyPrivileged, true)
			c.Next()
			return
		}
		if _, ok := ordinary[apiKey]; ok {
			c.Set(ctxKeyPrivileged, false)
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
		c.Abort()
	}
}

// TracingMiddleware opens one server span per request.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.target", c.Request.URL.Path),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
