package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/consts"
	"Cadence/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

type redisSlotCache struct {
	ttl time.Duration
}

// NewRedisSlotCache 每个平台一个哈希，字段为 limit
func NewRedisSlotCache(ttl time.Duration) SlotCache {
	return &redisSlotCache{ttl: ttl}
}

func (c *redisSlotCache) Get(ctx context.Context, platform string, limit int) ([]model.TimeSlot, bool) {
	if !redis.Enabled() {
		return nil, false
	}
	raw, err := redis.HGet(ctx, consts.TopSlotsKey+platform, strconv.Itoa(limit))
	if err != nil {
		log.WarnContext(ctx, "read top slots cache failed", "platform", platform, "err", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var slots []model.TimeSlot
	if err = json.Unmarshal([]byte(raw), &slots); err != nil {
		log.WarnContext(ctx, "decode top slots cache failed", "platform", platform, "err", err)
		return nil, false
	}
	return slots, true
}

func (c *redisSlotCache) Set(ctx context.Context, platform string, limit int, slots []model.TimeSlot) {
	if !redis.Enabled() {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err = redis.HSetWithExpiration(ctx, consts.TopSlotsKey+platform, strconv.Itoa(limit), raw, c.ttl); err != nil {
		log.WarnContext(ctx, "write top slots cache failed", "platform", platform, "err", err)
	}
}

func (c *redisSlotCache) Invalidate(ctx context.Context, platform string) {
	if err := redis.DeleteKey(ctx, consts.TopSlotsKey+platform); err != nil {
		log.WarnContext(ctx, "invalidate top slots cache failed", "platform", platform, "err", err)
	}
}
