package service

import (
	"Cadence/internal/pkg/redis"
	"context"
	log "log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RunGuard 同一时刻只允许一个运行
type RunGuard interface {
	// TryAcquire 成功时返回释放函数
	TryAcquire(ctx context.Context) (release func(), ok bool)
}

type localRunGuard struct {
	running atomic.Bool
}

// NewLocalRunGuard 进程内互斥
func NewLocalRunGuard() RunGuard {
	return &localRunGuard{}
}

func (g *localRunGuard) TryAcquire(_ context.Context) (func(), bool) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false
	}
	return func() { g.running.Store(false) }, true
}

type redisRunGuard struct {
	local *localRunGuard
	key   string
	ttl   time.Duration
}

// NewRedisRunGuard 进程内互斥之外再加 Redis 锁，多实例部署时只有一个实例运行
// Redis 不可用时退化为进程内互斥
func NewRedisRunGuard(key string, ttl time.Duration) RunGuard {
	return &redisRunGuard{
		local: &localRunGuard{},
		key:   key,
		ttl:   ttl,
	}
}

func (g *redisRunGuard) TryAcquire(ctx context.Context) (func(), bool) {
	releaseLocal, ok := g.local.TryAcquire(ctx)
	if !ok {
		return nil, false
	}
	if !redis.Enabled() {
		return releaseLocal, true
	}

	token := uuid.NewString()
	locked, err := redis.TryLock(ctx, g.key, token, g.ttl, 1)
	if err != nil {
		log.WarnContext(ctx, "redis lock unavailable, falling back to local guard", "key", g.key, "err", err)
		return releaseLocal, true
	}
	if !locked {
		releaseLocal()
		return nil, false
	}

	return func() {
		redis.UnLock(context.Background(), g.key, token)
		releaseLocal()
	}, true
}
