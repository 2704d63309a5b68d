package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"time"
)

const bodyLogLimit = 1000

// HTTPTransport 记录外部 HTTP 调用的请求、响应与耗时
type HTTPTransport struct {
	Transport http.RoundTripper
	// Name 日志中的调用方名称，如 INSIGHTS
	Name string
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	resp, err := next.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []any{
		log.String("method", req.Method),
		log.String("url", req.URL.Redacted()),
		log.Duration("latency", elapsed),
		log.String("req_body", truncate(reqBody)),
	}

	if err != nil {
		log.ErrorContext(req.Context(), t.Name+"_HTTP_ERROR", append(fields, log.Any("err", err))...)
		return nil, err
	}

	var resBody []byte
	if resp.Body != nil {
		resBody, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(resBody))
	}
	fields = append(fields, log.Int("status", resp.StatusCode), log.String("res_body", truncate(resBody)))

	switch {
	case resp.StatusCode >= 500:
		log.ErrorContext(req.Context(), t.Name+"_HTTP_ERROR", fields...)
	case elapsed > 500*time.Millisecond:
		log.WarnContext(req.Context(), t.Name+"_HTTP_SLOW", fields...)
	default:
		log.DebugContext(req.Context(), t.Name+"_HTTP", fields...)
	}

	return resp, nil
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > bodyLogLimit {
		return s[:bodyLogLimit] + "...[truncated]"
	}
	return s
}
