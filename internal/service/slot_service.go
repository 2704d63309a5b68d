package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/repository"
	"context"
	log "log/slog"
	"sort"
)

// DefaultPeakHours 无历史数据时使用的固定高峰小时
var DefaultPeakHours = []int{9, 12, 17, 19}

type SlotService interface {
	TopSlots(ctx context.Context, platform string, limit int) ([]model.TimeSlot, error)
	TopSlotsOrDefault(ctx context.Context, platform string, limit int) ([]model.TimeSlot, error)
	BlendedTopSlots(ctx context.Context, platforms []string, limit int) ([]model.TimeSlot, error)
	Buckets(ctx context.Context, platform string) ([]*model.PeakEngagementBucket, error)
	Invalidate(ctx context.Context, platforms ...string)
}

// SlotCache 榜单缓存，命中失败不影响主流程
type SlotCache interface {
	Get(ctx context.Context, platform string, limit int) ([]model.TimeSlot, bool)
	Set(ctx context.Context, platform string, limit int, slots []model.TimeSlot)
	Invalidate(ctx context.Context, platform string)
}

type slotServiceImpl struct {
	bucketRepo repository.PeakBucketRepo
	cache      SlotCache
	policy     resilience.Policy
}

// NewSlotService cache 可为 nil
func NewSlotService(bucketRepo repository.PeakBucketRepo, cache SlotCache, policy resilience.Policy) SlotService {
	return &slotServiceImpl{
		bucketRepo: bucketRepo,
		cache:      cache,
		policy:     policy,
	}
}

func (s *slotServiceImpl) TopSlots(ctx context.Context, platform string, limit int) ([]model.TimeSlot, error) {
	if platform == "" || limit < 0 {
		return nil, ErrParamInvalid
	}
	if limit == 0 {
		return []model.TimeSlot{}, nil
	}

	if s.cache != nil {
		if slots, ok := s.cache.Get(ctx, platform, limit); ok {
			return slots, nil
		}
	}

	buckets, err := s.Buckets(ctx, platform)
	if err != nil {
		return nil, err
	}
	slots := RankBuckets(buckets, limit)

	if s.cache != nil {
		s.cache.Set(ctx, platform, limit, slots)
	}
	return slots, nil
}

// TopSlotsOrDefault 平台无数据时退回默认时段
func (s *slotServiceImpl) TopSlotsOrDefault(ctx context.Context, platform string, limit int) ([]model.TimeSlot, error) {
	slots, err := s.TopSlots(ctx, platform, limit)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return DefaultSlots(limit), nil
	}
	return slots, nil
}

// BlendedTopSlots 各平台取 top-N 后按均值合并，缺席的平台按 0 计
func (s *slotServiceImpl) BlendedTopSlots(ctx context.Context, platforms []string, limit int) ([]model.TimeSlot, error) {
	if len(platforms) == 0 || limit < 0 {
		return nil, ErrParamInvalid
	}

	lists := make([][]model.TimeSlot, 0, len(platforms))
	for _, platform := range platforms {
		slots, err := s.TopSlots(ctx, platform, limit)
		if err != nil {
			return nil, err
		}
		lists = append(lists, slots)
	}

	blended := BlendSlots(lists, limit)
	if len(blended) == 0 {
		return DefaultSlots(limit), nil
	}
	return blended, nil
}

func (s *slotServiceImpl) Buckets(ctx context.Context, platform string) ([]*model.PeakEngagementBucket, error) {
	return resilience.Do(ctx, s.policy, func(ctx context.Context) ([]*model.PeakEngagementBucket, error) {
		return s.bucketRepo.ListByPlatform(ctx, platform)
	})
}

func (s *slotServiceImpl) Invalidate(ctx context.Context, platforms ...string) {
	if s.cache == nil {
		return
	}
	for _, platform := range platforms {
		s.cache.Invalidate(ctx, platform)
		log.DebugContext(ctx, "top slots cache invalidated", "platform", platform)
	}
}

// RankBuckets 按平均分降序，其次样本数降序、小时升序、星期升序
func RankBuckets(buckets []*model.PeakEngagementBucket, limit int) []model.TimeSlot {
	slots := make([]model.TimeSlot, 0, len(buckets))
	for _, b := range buckets {
		if b == nil || b.TotalSamples <= 0 {
			continue
		}
		slots = append(slots, model.TimeSlot{
			DayOfWeek:    b.DayOfWeek,
			HourOfDay:    b.HourOfDay,
			Score:        b.AvgScore,
			TotalSamples: b.TotalSamples,
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalSamples != b.TotalSamples {
			return a.TotalSamples > b.TotalSamples
		}
		if a.HourOfDay != b.HourOfDay {
			return a.HourOfDay < b.HourOfDay
		}
		return a.DayOfWeek < b.DayOfWeek
	})

	if limit >= 0 && len(slots) > limit {
		slots = slots[:limit]
	}
	return slots
}

// BlendSlots 合并多个平台的榜单，得分取算术平均
func BlendSlots(lists [][]model.TimeSlot, limit int) []model.TimeSlot {
	if len(lists) == 0 {
		return []model.TimeSlot{}
	}

	type key struct{ day, hour int }
	sums := make(map[key]*model.TimeSlot)
	for _, list := range lists {
		for _, slot := range list {
			k := key{slot.DayOfWeek, slot.HourOfDay}
			acc, ok := sums[k]
			if !ok {
				acc = &model.TimeSlot{DayOfWeek: slot.DayOfWeek, HourOfDay: slot.HourOfDay}
				sums[k] = acc
			}
			acc.Score += slot.Score
			acc.TotalSamples += slot.TotalSamples
		}
	}

	n := float64(len(lists))
	blended := make([]model.TimeSlot, 0, len(sums))
	for _, acc := range sums {
		acc.Score /= n
		blended = append(blended, *acc)
	}

	sort.Slice(blended, func(i, j int) bool {
		a, b := blended[i], blended[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.HourOfDay < b.HourOfDay
	})

	if limit >= 0 && len(blended) > limit {
		blended = blended[:limit]
	}
	return blended
}

// DefaultSlots 每天的默认高峰小时，按星期、小时升序
func DefaultSlots(limit int) []model.TimeSlot {
	slots := make([]model.TimeSlot, 0, 7*len(DefaultPeakHours))
	for day := 0; day < 7; day++ {
		for _, hour := range DefaultPeakHours {
			slots = append(slots, model.TimeSlot{DayOfWeek: day, HourOfDay: hour, IsDefault: true})
		}
	}
	if limit >= 0 && len(slots) > limit {
		slots = slots[:limit]
	}
	return slots
}
