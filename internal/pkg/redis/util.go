package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled 未配置或连接失败时的占位错误，调用方按缓存未命中处理
var ErrDisabled = errors.New("redis disabled")

// HSetWithExpiration 写入哈希字段并刷新整个键的过期时间
func HSetWithExpiration(ctx context.Context, key, field string, value interface{}, expiration time.Duration) error {
	if Rdb == nil {
		return ErrDisabled
	}
	pipe := Rdb.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, expiration)
	_, err := pipe.Exec(ctx)
	return err
}

// HGet 获取哈希字段，不存在时返回空串
func HGet(ctx context.Context, key, field string) (string, error) {
	if Rdb == nil {
		return "", ErrDisabled
	}
	value, err := Rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// TryLock 尝试加锁，retryTimes 为 -1 时一直重试
func TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error) {
	if Rdb == nil {
		return false, ErrDisabled
	}
	for i := 0; i < retryTimes || retryTimes == -1; i++ {
		success, err := Rdb.SetNX(ctx, key, value, expiration).Result()
		if err != nil {
			return false, err
		}
		if success {
			return true, nil
		}
		time.Sleep(time.Millisecond * 200)
	}
	return false, nil
}

// UnLock 释放锁
func UnLock(ctx context.Context, key string, value interface{}) {
	if Rdb == nil {
		return
	}
	Rdb.Eval(ctx, "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end", []string{key}, value)
}

// DeleteKey 删除键
func DeleteKey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 || Rdb == nil {
		return nil
	}
	return Rdb.Del(ctx, keys...).Err()
}
