package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditcontext "github.com/smallbiznis/beacon/internal/auditcontext"
	obscontext "github.com/smallbiznis/beacon/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// requestIDHeaders lists the header spellings accepted for inbound request
// IDs, most common first.
var requestIDHeaders = []string{"X-Request-Id", "X-Request-ID"}

// GinMiddleware logs one line per request with correlation identifiers and
// safe fields. It also stamps the request ID and client hints onto the
// request context so downstream audit writes pick them up.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := c.Request.Context()
		ctx = obscontext.WithRequestID(ctx, requestID)
		ctx = auditcontext.WithRequestID(ctx, requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)
		fields, errorType := requestFields(c, cfg, route, status, start)

		log := FromContext(c.Request.Context())
		if log == nil {
			return
		}
		log.Log(requestLogLevel(route, status, errorType), "http_request", fields...)
	}
}

func requestFields(c *gin.Context, cfg MiddlewareConfig, route string, status int, start time.Time) ([]zap.Field, string) {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}

	if projectID := strings.TrimSpace(c.GetString("project_id")); projectID != "" {
		fields = append(fields, zap.String("project_id", projectID))
	}

	var errorType, errorCode string
	if lastErr := c.Errors.Last(); lastErr != nil {
		if cfg.ErrorClassifier != nil {
			errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
		}
		fields = append(fields,
			zap.String("error_type", errorType),
			zap.String("error_code", errorCode),
		)
		if cfg.Debug {
			fields = append(fields, zap.Stack("stack"))
		}
	}

	return fields, errorType
}

// requestLogLevel keeps high-volume noise out of the info stream: metrics
// scrapes and client-side validation failures on the collect endpoint log at
// debug, server errors at error, everything else at info.
func requestLogLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case routeIs(route, "/metrics"):
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case routeIs(route, "/api/v1/collect") && status >= http.StatusBadRequest && errorType == "validation_error":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

func routeIs(route, want string) bool {
	return strings.EqualFold(strings.TrimSpace(route), want)
}

func routeLabel(c *gin.Context) string {
	if route := strings.TrimSpace(c.FullPath()); route != "" {
		return route
	}
	return "unknown"
}

func ensureRequestID(c *gin.Context) string {
	var requestID string
	for _, header := range requestIDHeaders {
		if requestID = strings.TrimSpace(c.GetHeader(header)); requestID != "" {
			break
		}
	}
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString("request_id"))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}
