package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggingConfig struct {
	ignorePath []string
}

type LoggerOption func(*loggingConfig)

func WithIgnorePath(paths ...string) LoggerOption {
	return func(c *loggingConfig) {
		c.ignorePath = paths
	}
}

// RequestLogger logs one line per request. 4xx responses are logged at warn
// and 5xx at error.
func RequestLogger(log *zap.Logger, options ...LoggerOption) gin.HandlerFunc {
	cfg := &loggingConfig{}
	for _, option := range options {
		option(cfg)
	}

	ignore := make(map[string]struct{}, len(cfg.ignorePath))
	for _, path := range cfg.ignorePath {
		ignore[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := ignore[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		level := zapcore.InfoLevel
		if status >= http.StatusBadRequest {
			level = zapcore.WarnLevel
		}
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}

		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("data_length", size),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		if ce := log.Check(level, c.Request.Method+" "+c.Request.URL.Path); ce != nil {
			ce.Write(fields...)
		}
	}
}

// Recovery turns a panic into a 500 and logs it with the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
