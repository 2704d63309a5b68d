package logger

import (
	"context"
	log "log/slog"
)

// TraceIDKey 日志字段名，同时作为 gin.Context 中的键
const TraceIDKey = "trace_id"

type ctxKey int

const (
	traceIDCtxKey ctxKey = iota
	runIDCtxKey
	platformCtxKey
	dayCtxKey
)

// WithTraceID 请求、任务或消息的链路 id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey, traceID)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDCtxKey).(string)
	return id
}

// WithRunID 分析运行 id，便于按运行检索全部日志
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDCtxKey, runID)
}

// WithPlatform 当前处理的平台
func WithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, platformCtxKey, platform)
}

// WithDay 当前排期的日期，格式 YYYY-MM-DD
func WithDay(ctx context.Context, day string) context.Context {
	return context.WithValue(ctx, dayCtxKey, day)
}

var contextFields = []struct {
	key  ctxKey
	name string
}{
	{traceIDCtxKey, TraceIDKey},
	{runIDCtxKey, "run_id"},
	{platformCtxKey, "platform"},
	{dayCtxKey, "day"},
}

// ContextHandler 从 ctx 中提取 trace_id、run_id、platform、day 写入每条日志
// 按平台、按天失败的日志据此可定位并手动重跑
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		for _, f := range contextFields {
			if v, ok := ctx.Value(f.key).(string); ok && v != "" && !hasAttr(r, f.name) {
				r.AddAttrs(log.String(f.name, v))
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}

// hasAttr 调用方已显式传入同名字段时不再重复添加
func hasAttr(r log.Record, key string) bool {
	found := false
	r.Attrs(func(a log.Attr) bool {
		if a.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
