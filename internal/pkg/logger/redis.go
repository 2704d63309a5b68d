package logger

import (
	"Cadence/internal/pkg/consts"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSlow    = 100 * time.Millisecond
	redisArgsMax = 300
)

// RedisLoggerHook Redis 命令日志
// 时段缓存失败时调用方会回源 MySQL，只记 warn；锁与其他键的失败记 error
type RedisLoggerHook struct{}

func NewRedisLogger() *RedisLoggerHook {
	return &RedisLoggerHook{}
}

func (s *RedisLoggerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		if err != nil {
			log.ErrorContext(ctx, "Redis Dial Error",
				log.String("addr", addr),
				log.Duration("latency", time.Since(start)),
				log.Any("err", err),
			)
		}
		return conn, err
	}
}

func (s *RedisLoggerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		elapsed := time.Since(start)

		name := cmd.Name()
		key := commandKey(cmd)
		fields := []any{
			log.String("command", name),
			log.String("key_kind", keyKind(key)),
			log.String("args", commandArgs(cmd)),
			log.Duration("latency", elapsed),
		}

		switch {
		case err == nil:
			if elapsed > redisSlow {
				log.WarnContext(ctx, "Redis Slow", fields...)
			}
		case errors.Is(err, redis.Nil):
		case name == "client" && strings.Contains(err.Error(), "setinfo"):
		case keyKind(key) == "slot_cache":
			log.WarnContext(ctx, "Redis Cache Error", append(fields, log.Any("err", err))...)
		default:
			log.ErrorContext(ctx, "Redis Error", append(fields, log.Any("err", err))...)
		}
		return err
	}
}

func (s *RedisLoggerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)

		if err == nil && elapsed < redisSlow {
			return nil
		}
		var key string
		if len(cmds) > 0 {
			key = commandKey(cmds[0])
		}
		fields := []any{
			log.Int("cmd_count", len(cmds)),
			log.String("key_kind", keyKind(key)),
			log.Duration("latency", elapsed),
		}
		if err != nil {
			log.WarnContext(ctx, "Redis Pipeline Error", append(fields, log.Any("err", err))...)
		} else {
			log.WarnContext(ctx, "Redis Pipeline Slow", fields...)
		}
		return err
	}
}

func commandKey(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	// EVAL script numkeys key ...
	if cmd.Name() == "eval" || cmd.Name() == "evalsha" {
		if len(args) < 4 {
			return ""
		}
		return fmt.Sprint(args[3])
	}
	return fmt.Sprint(args[1])
}

func keyKind(key string) string {
	switch {
	case key == "":
		return "none"
	case strings.HasPrefix(key, consts.TopSlotsKey):
		return "slot_cache"
	case key == consts.AnalysisRunLock || key == consts.QueueBuildLock:
		return "run_lock"
	default:
		return "other"
	}
}

func commandArgs(cmd redis.Cmder) string {
	switch cmd.Name() {
	case "auth", "hello":
		return "[PROTECTED]"
	}
	args := fmt.Sprint(cmd.Args())
	if len(args) > redisArgsMax {
		return args[:redisArgsMax] + "...[truncated]"
	}
	return args
}
