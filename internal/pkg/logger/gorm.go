package logger

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm/logger"
)

const (
	defaultSlowSQL       = 200 * time.Millisecond
	mysqlDuplicateKeyErr = 1062
)

// SlogGormLogger gorm 日志接入 slog
// active_key 唯一键冲突是排期去重的正常结果，只记 debug
type SlogGormLogger struct {
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewGormLogger() *SlogGormLogger {
	return &SlogGormLogger{LogLevel: logger.Warn, SlowThreshold: defaultSlowSQL}
}

func (l *SlogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.LogLevel = level
	return &next
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		log.InfoContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		log.WarnContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		log.ErrorContext(ctx, msg, "data", data)
	}
}

func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	msg := "MySQL " + sqlOperation(sql)
	fields := []any{
		log.String("sql", sql),
		log.Duration("latency", elapsed),
		log.Int64("rows", rows),
	}

	switch {
	case err == nil || errors.Is(err, logger.ErrRecordNotFound):
		if l.SlowThreshold > 0 && elapsed > l.SlowThreshold {
			log.WarnContext(ctx, msg+" Slow", fields...)
		} else {
			log.DebugContext(ctx, msg, fields...)
		}
	case isDuplicateKey(err):
		log.DebugContext(ctx, msg+" Duplicate", append(fields, log.Any("err", err))...)
	case errors.Is(err, context.Canceled):
		log.WarnContext(ctx, msg+" Canceled", fields...)
	default:
		log.ErrorContext(ctx, msg+" Error", append(fields, log.Any("err", err))...)
	}
}

func sqlOperation(sql string) string {
	op, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	if op == "" {
		return "Query"
	}
	return strings.ToUpper(op)
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateKeyErr
}
