package logger

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const (
	mongoSlow         = 200 * time.Millisecond
	mongoCmdDetailMax = 1000
)

// 握手与心跳类命令不记录
var mongoQuietCommands = map[string]struct{}{
	"hello":        {},
	"isMaster":     {},
	"ismaster":     {},
	"ping":         {},
	"endSessions":  {},
	"saslStart":    {},
	"saslContinue": {},
}

// NewMongoMonitor 运行记录读写的命令日志，按 request_id 关联开始与结束事件以带上集合名
func NewMongoMonitor() *event.CommandMonitor {
	var collections sync.Map

	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			if _, quiet := mongoQuietCommands[evt.CommandName]; quiet {
				return
			}
			collection, _ := evt.Command.Lookup(evt.CommandName).StringValueOK()
			collections.Store(evt.RequestID, collection)

			detail := evt.Command.String()
			if len(detail) > mongoCmdDetailMax {
				detail = detail[:mongoCmdDetailMax] + "...[truncated]"
			}
			log.DebugContext(ctx, "MongoDB Started",
				log.String("command", evt.CommandName),
				log.String("database", evt.DatabaseName),
				log.String("collection", collection),
				log.Int64("request_id", evt.RequestID),
				log.String("cmd_detail", detail),
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			collection, ok := collections.LoadAndDelete(evt.RequestID)
			if !ok {
				return
			}
			fields := []any{
				log.String("command", evt.CommandName),
				log.Any("collection", collection),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
			}
			if evt.Duration > mongoSlow {
				log.WarnContext(ctx, "MongoDB Slow", fields...)
			} else {
				log.DebugContext(ctx, "MongoDB Success", fields...)
			}
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			collection, ok := collections.LoadAndDelete(evt.RequestID)
			if !ok {
				return
			}
			log.ErrorContext(ctx, "MongoDB Error",
				log.String("command", evt.CommandName),
				log.Any("collection", collection),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
				log.Any("err", evt.Failure),
			)
		},
	}
}
