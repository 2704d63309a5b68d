package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/metrics"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"sort"
	"time"
)

type EngagementService interface {
	Ingest(ctx context.Context, platform string, samples []*model.EngagementSample) (*IngestResult, error)
}

// IngestResult 一次聚合写入的结果
type IngestResult struct {
	Platform       string `json:"platform"`
	Samples        int    `json:"samples"`
	BucketsTouched int    `json:"buckets_touched"`
}

type engagementServiceImpl struct {
	bucketRepo repository.PeakBucketRepo
	loc        *time.Location
	score      ScoreFunc
	policy     resilience.Policy
	now        func() time.Time
}

type EngagementOption func(*engagementServiceImpl)

// WithScoreFunc 替换默认评分函数
func WithScoreFunc(fn ScoreFunc) EngagementOption {
	return func(s *engagementServiceImpl) {
		if fn != nil {
			s.score = fn
		}
	}
}

func WithEngagementClock(now func() time.Time) EngagementOption {
	return func(s *engagementServiceImpl) {
		s.now = now
	}
}

func NewEngagementService(bucketRepo repository.PeakBucketRepo, loc *time.Location, policy resilience.Policy, opts ...EngagementOption) EngagementService {
	if loc == nil {
		loc = time.Local
	}
	s := &engagementServiceImpl{
		bucketRepo: bucketRepo,
		loc:        loc,
		score:      EngagementScore,
		policy:     policy,
		now:        time.Now,
	}
	// 累加写入不幂等：不设单次超时，只重试确定未生效的错误
	s.policy.AttemptTimeout = 0
	s.policy.RetryIf = repository.IsRetryableWrite
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest 按 (星期, 小时) 分组后逐键原子写入
// 取消只在键与键之间检查，已写入的键保持完整
func (s *engagementServiceImpl) Ingest(ctx context.Context, platform string, samples []*model.EngagementSample) (*IngestResult, error) {
	if platform == "" {
		return nil, ErrParamInvalid
	}
	result := &IngestResult{Platform: platform}

	deltas := s.group(platform, samples)
	for _, delta := range deltas {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		d := delta
		err := resilience.Run(ctx, s.policy, func(ctx context.Context) error {
			return s.bucketRepo.UpsertBucket(ctx, d)
		})
		if err != nil {
			log.ErrorContext(ctx, "upsert bucket failed",
				"platform", platform, "day", d.Key.DayOfWeek, "hour", d.Key.HourOfDay,
				"samples", d.Samples, "score_sum", d.ScoreSum, "err", err)
			return result, fmt.Errorf("upsert bucket %s/%d/%d: %w", platform, d.Key.DayOfWeek, d.Key.HourOfDay, err)
		}

		metrics.BucketUpserts.WithLabelValues(platform).Inc()
		result.Samples += int(d.Samples)
		result.BucketsTouched++
	}

	log.InfoContext(ctx, "engagement ingested", "platform", platform, "samples", result.Samples, "buckets", result.BucketsTouched)
	return result, nil
}

func (s *engagementServiceImpl) group(platform string, samples []*model.EngagementSample) []*model.BucketDelta {
	now := s.now()
	grouped := make(map[model.BucketKey]*model.BucketDelta)

	for _, sample := range samples {
		if sample == nil || sample.PostedAt.IsZero() {
			continue
		}
		local := sample.PostedAt.In(s.loc)
		key := model.BucketKey{
			Platform:  platform,
			DayOfWeek: int(local.Weekday()),
			HourOfDay: local.Hour(),
		}
		delta, ok := grouped[key]
		if !ok {
			delta = &model.BucketDelta{Key: key, At: now}
			grouped[key] = delta
		}
		delta.ScoreSum += s.score(platform, sample)
		delta.Samples++
	}

	deltas := make([]*model.BucketDelta, 0, len(grouped))
	for _, d := range grouped {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Key.DayOfWeek != deltas[j].Key.DayOfWeek {
			return deltas[i].Key.DayOfWeek < deltas[j].Key.DayOfWeek
		}
		return deltas[i].Key.HourOfDay < deltas[j].Key.HourOfDay
	})
	return deltas
}
