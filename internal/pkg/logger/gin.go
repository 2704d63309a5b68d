package logger

import (
	"Cadence/internal/api/config"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// 探活与指标抓取不记访问日志
var accessLogSkipPaths = []string{"/metrics", "/api/ping"}

type accessLog struct {
	Time        string `json:"time"`
	Level       string `json:"level"`
	Msg         string `json:"msg"`
	TraceID     string `json:"trace_id,omitempty"`
	LogToken    string `json:"log_token,omitempty"`
	TargetIndex string `json:"target_index,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	ClientIP    string `json:"client_ip"`
	Status      int    `json:"status"`
	Latency     string `json:"latency"`
	Error       string `json:"error,omitempty"`
}

// SetupGin 访问日志以 JSON 写入与业务日志相同的输出，状态码 >= 500 记为 ERROR
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: accessLogSkipPaths,
		Formatter: formatAccessLog,
	}))
	r.Use(gin.Recovery())
}

func formatAccessLog(p gin.LogFormatterParams) string {
	entry := accessLog{
		Time:     p.TimeStamp.Format(time.RFC3339),
		Level:    "INFO",
		Msg:      "GIN_ACCESS",
		TraceID:  accessTraceID(p),
		Method:   p.Method,
		Path:     p.Path,
		ClientIP: p.ClientIP,
		Status:   p.StatusCode,
		Latency:  p.Latency.String(),
		Error:    p.ErrorMessage,
	}
	if config.Cfg != nil {
		entry.LogToken = config.Cfg.Logstash.Token
		entry.TargetIndex = config.Cfg.Logstash.Index
	}
	switch {
	case p.StatusCode >= 500:
		entry.Level = "ERROR"
	case p.StatusCode >= 400:
		entry.Level = "WARN"
	}

	out, err := json.Marshal(entry)
	if err != nil {
		return ""
	}
	return string(out) + "\n"
}

func accessTraceID(p gin.LogFormatterParams) string {
	if p.Keys != nil {
		if id, ok := p.Keys[TraceIDKey].(string); ok && id != "" {
			return id
		}
	}
	if p.Request != nil {
		return TraceID(p.Request.Context())
	}
	return ""
}
