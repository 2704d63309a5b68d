package job

import (
	"Cadence/internal/pkg/logger"
	"Cadence/internal/service"
	"context"
	log "log/slog"

	"github.com/google/uuid"
)

type QueueJanitorJob struct {
	baseCtx context.Context
	queue   service.QueueService
}

func NewQueueJanitorJob(baseCtx context.Context, queue service.QueueService) *QueueJanitorJob {
	return &QueueJanitorJob{
		baseCtx: baseCtx,
		queue:   queue,
	}
}

func (s *QueueJanitorJob) Run() {
	traceID := "job-janitor-" + uuid.NewString()
	ctx := logger.WithTraceID(s.baseCtx, traceID)

	result, err := s.queue.RunJanitor(ctx)
	if err != nil {
		log.ErrorContext(ctx, "queue janitor failed", "err", err)
		return
	}
	if result.Deleted > 0 {
		log.InfoContext(ctx, "QueueJanitorJob finished", "deleted", result.Deleted, "cutoff", result.Cutoff)
	}
}
