package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/contexts"
	"github.com/pagegraph/pagegraph/internal/log"
)

// WithRequestID assigns a request id readable by the log hooks.
func WithRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := contexts.WithRequestID(c.Request.Context(), uuid.NewString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog logs failed requests: status code, method, path, principal
// and collected errors. Successful requests stay quiet.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		var errMsgs []string
		for _, e := range c.Errors {
			errMsgs = append(errMsgs, e.Error())
		}

		status := c.Writer.Status()
		if status < 400 && len(errMsgs) == 0 {
			return
		}

		ctx := c.Request.Context()

		fields := []log.Field{
			log.Int("status", status),
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Duration("latency", time.Since(start)),
			log.String("client_ip", c.ClientIP()),
			log.String("principal", authz.CurrentPrincipal(ctx).String()),
		}

		if len(errMsgs) > 0 {
			fields = append(fields, log.Strings("errors", errMsgs))
		}

		log.Error(ctx, "[ACCESS]", fields...)
	}
}
