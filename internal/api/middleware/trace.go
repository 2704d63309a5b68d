package middleware

import (
	"Cadence/internal/pkg/logger"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceHeader   = "X-Trace-ID"
	requestHeader = "X-Request-ID"
)

// 发布方与 cadencectl 透传的链路 id，不合规的丢弃重新生成，避免污染日志
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := incomingTraceID(c)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Header(traceHeader, traceID)
		c.Next()
	}
}

func incomingTraceID(c *gin.Context) string {
	for _, header := range []string{traceHeader, requestHeader} {
		if id := c.GetHeader(header); traceIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}
