package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/pkg/metrics"
	"Cadence/internal/pkg/mongo"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
	RunStatusBusy    = "busy"
)

// EngagementSource 平台历史帖子数据来源
type EngagementSource interface {
	FetchRecentPosts(ctx context.Context, platform string, count int) ([]*model.EngagementSample, error)
}

type AnalysisService interface {
	// Run 分析各平台近期帖子并写入聚合桶；已有运行时立即返回 busy
	Run(ctx context.Context, trigger string, platforms []string) (*mongo.AnalysisRunModel, error)
	RecentRuns(ctx context.Context, limit int) ([]*mongo.AnalysisRunModel, error)
}

type analysisServiceImpl struct {
	source      EngagementSource
	engagement  EngagementService
	slots       SlotService
	runRepo     mongo.AnalysisRunRepo
	guard       RunGuard
	platforms   []string
	recentCount int
	now         func() time.Time
}

type AnalysisOption func(*analysisServiceImpl)

// WithRunRepo 记录每次运行，nil 时不记录
func WithRunRepo(repo mongo.AnalysisRunRepo) AnalysisOption {
	return func(s *analysisServiceImpl) {
		s.runRepo = repo
	}
}

func WithAnalysisClock(now func() time.Time) AnalysisOption {
	return func(s *analysisServiceImpl) {
		s.now = now
	}
}

func NewAnalysisService(
	source EngagementSource,
	engagement EngagementService,
	slots SlotService,
	guard RunGuard,
	platforms []string,
	recentCount int,
	opts ...AnalysisOption,
) AnalysisService {
	if guard == nil {
		guard = NewLocalRunGuard()
	}
	if recentCount <= 0 {
		recentCount = 50
	}
	s := &analysisServiceImpl{
		source:      source,
		engagement:  engagement,
		slots:       slots,
		guard:       guard,
		platforms:   platforms,
		recentCount: recentCount,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 各平台并发执行，互不影响；全部结束后才返回
func (s *analysisServiceImpl) Run(ctx context.Context, trigger string, platforms []string) (*mongo.AnalysisRunModel, error) {
	if len(platforms) == 0 {
		platforms = s.platforms
	}
	if len(platforms) == 0 {
		return nil, ErrParamInvalid
	}

	run := &mongo.AnalysisRunModel{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now(),
		Platforms: make([]*mongo.PlatformOutcome, len(platforms)),
	}

	release, ok := s.guard.TryAcquire(ctx)
	if !ok {
		run.Status = RunStatusBusy
		run.Platforms = nil
		run.FinishedAt = run.StartedAt
		metrics.AnalysisRuns.WithLabelValues(RunStatusBusy).Inc()
		log.InfoContext(ctx, "analysis already running, skip", "trigger", trigger)
		return run, nil
	}
	defer release()

	ctx = logger.WithRunID(ctx, run.RunID)
	log.InfoContext(ctx, "analysis run started", "trigger", trigger, "platforms", platforms)

	var g errgroup.Group
	for i, platform := range platforms {
		g.Go(func() error {
			run.Platforms[i] = s.analyzePlatform(logger.WithPlatform(ctx, platform), platform)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]string, 0, len(platforms))
	for _, outcome := range run.Platforms {
		if outcome.Status == RunStatusSuccess {
			succeeded = append(succeeded, outcome.Platform)
		}
	}
	switch {
	case len(succeeded) == len(platforms):
		run.Status = RunStatusSuccess
	case len(succeeded) == 0:
		run.Status = RunStatusFailed
	default:
		run.Status = RunStatusPartial
	}
	run.FinishedAt = s.now()

	if s.slots != nil && len(succeeded) > 0 {
		s.slots.Invalidate(ctx, succeeded...)
	}
	if s.runRepo != nil {
		if err := s.runRepo.Save(context.WithoutCancel(ctx), run); err != nil {
			log.ErrorContext(ctx, "save analysis run failed", "err", err)
		}
	}

	metrics.AnalysisRuns.WithLabelValues(run.Status).Inc()
	log.InfoContext(ctx, "analysis run finished",
		"status", run.Status,
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

func (s *analysisServiceImpl) analyzePlatform(ctx context.Context, platform string) *mongo.PlatformOutcome {
	start := time.Now()
	outcome := &mongo.PlatformOutcome{Platform: platform, Status: RunStatusFailed}
	defer func() {
		outcome.DurationMs = time.Since(start).Milliseconds()
	}()

	samples, err := s.source.FetchRecentPosts(ctx, platform, s.recentCount)
	if err != nil {
		outcome.Error = fmt.Errorf("%w: %v", ErrDataUnavailable, err).Error()
		log.ErrorContext(ctx, "fetch recent posts failed", "err", err)
		return outcome
	}
	outcome.Samples = len(samples)

	result, err := s.engagement.Ingest(ctx, platform, samples)
	if result != nil {
		outcome.BucketsTouched = result.BucketsTouched
	}
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = RunStatusSuccess
	return outcome
}

func (s *analysisServiceImpl) RecentRuns(ctx context.Context, limit int) ([]*mongo.AnalysisRunModel, error) {
	if s.runRepo == nil {
		return []*mongo.AnalysisRunModel{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runRepo.ListRecent(ctx, int64(limit))
}
