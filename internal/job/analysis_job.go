package job

import (
	"Cadence/internal/pkg/consts"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

// AnalysisJob 每日分析近期帖子表现，随后从明天起排满一周
type AnalysisJob struct {
	baseCtx  context.Context
	analysis service.AnalysisService
	builder  service.QueueBuilderService
	loc      *time.Location
	now      func() time.Time
}

// NewAnalysisJob baseCtx 结束时正在执行的任务随之取消
func NewAnalysisJob(baseCtx context.Context, analysis service.AnalysisService, builder service.QueueBuilderService, loc *time.Location) *AnalysisJob {
	if loc == nil {
		loc = time.Local
	}
	return &AnalysisJob{
		baseCtx:  baseCtx,
		analysis: analysis,
		builder:  builder,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *AnalysisJob) Run() {
	traceID := "job-analysis-" + uuid.NewString()
	ctx := logger.WithTraceID(s.baseCtx, traceID)

	run, err := s.analysis.Run(ctx, consts.TriggerScheduled, nil)
	if err != nil {
		log.ErrorContext(ctx, "scheduled analysis failed", "err", err)
		return
	}
	if run.Status == service.RunStatusBusy {
		log.InfoContext(ctx, "analysis busy, skip week build")
		return
	}
	if ctx.Err() != nil {
		return
	}

	tomorrow := s.now().In(s.loc).AddDate(0, 0, 1)
	result, err := s.builder.BuildWeek(ctx, &service.BuildWeekRequest{StartDate: tomorrow})
	if err != nil {
		log.ErrorContext(ctx, "scheduled week build failed", "err", err)
		return
	}
	log.InfoContext(ctx, "AnalysisJob finished",
		"analysis_status", run.Status,
		"scheduled", result.ScheduledCount,
		"duplicate_skips", result.DuplicateSkips)
}
