package service

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/metrics"
	"Cadence/internal/pkg/resilience"
	"Cadence/internal/pkg/util"
	"Cadence/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"
)

const (
	janitorBatchSize   = 500
	maxErrorMessageLen = 1024
	defaultDueLimit    = 50
	maxDueLimit        = 500
)

// JanitorResult 一次清理的结果
type JanitorResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// QueueStats 队列概览
type QueueStats struct {
	Rows             []model.QueueStatRow        `json:"rows"`
	Totals           map[model.QueueStatus]int64 `json:"totals"`
	NextScheduledFor *time.Time                  `json:"next_scheduled_for,omitempty"`
}

type QueueService interface {
	MarkPosted(ctx context.Context, entryID uint64, externalPostID string, postedAt time.Time) (*model.QueueEntry, error)
	MarkFailed(ctx context.Context, entryID uint64, reason string) (*model.QueueEntry, error)
	RunJanitor(ctx context.Context) (*JanitorResult, error)
	Stats(ctx context.Context) (*QueueStats, error)
	ListDue(ctx context.Context, platform string, limit int) ([]*model.QueueEntry, error)
	GetEntry(ctx context.Context, entryID uint64) (*model.QueueEntry, error)
}

type queueServiceImpl struct {
	queueRepo   repository.QueueRepo
	contentRepo repository.ContentRepo
	graceWindow time.Duration
	policy      resilience.Policy
	now         func() time.Time
}

type QueueOption func(*queueServiceImpl)

func WithQueueClock(now func() time.Time) QueueOption {
	return func(s *queueServiceImpl) {
		s.now = now
	}
}

func NewQueueService(queueRepo repository.QueueRepo, contentRepo repository.ContentRepo, graceWindow time.Duration, policy resilience.Policy, opts ...QueueOption) QueueService {
	if graceWindow <= 0 {
		graceWindow = 24 * time.Hour
	}
	s := &queueServiceImpl{
		queueRepo:   queueRepo,
		contentRepo: contentRepo,
		graceWindow: graceWindow,
		policy:      policy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkPosted queued -> posted，同时以真实发布时间刷新内容的 last_repost_at
// externalPostID 可为空，发布方不一定回传平台帖子 id
func (s *queueServiceImpl) MarkPosted(ctx context.Context, entryID uint64, externalPostID string, postedAt time.Time) (*model.QueueEntry, error) {
	if entryID == 0 {
		return nil, ErrParamInvalid
	}
	if postedAt.IsZero() {
		postedAt = s.now()
	}

	entry, err := s.transition(ctx, entryID, model.QueueStatusPosted, repository.TransitionFields{
		ExternalPostID: externalPostID,
		PostedAt:       &postedAt,
	})
	if err != nil {
		return nil, err
	}

	if err = s.contentRepo.MarkPosted(ctx, entry.SourceContentID, postedAt); err != nil {
		log.ErrorContext(ctx, "refresh content last repost failed", "content_id", entry.SourceContentID, "err", err)
	}
	log.InfoContext(ctx, "queue entry posted", "entry_id", entryID, "platform", entry.TargetPlatform, "external_post_id", externalPostID)
	return entry, nil
}

// MarkFailed queued -> failed
func (s *queueServiceImpl) MarkFailed(ctx context.Context, entryID uint64, reason string) (*model.QueueEntry, error) {
	if entryID == 0 {
		return nil, ErrParamInvalid
	}
	reason = util.TruncateUTF8(reason, maxErrorMessageLen)

	entry, err := s.transition(ctx, entryID, model.QueueStatusFailed, repository.TransitionFields{
		ErrorMessage: reason,
	})
	if err != nil {
		return nil, err
	}
	log.WarnContext(ctx, "queue entry failed", "entry_id", entryID, "platform", entry.TargetPlatform, "reason", reason)
	return entry, nil
}

func (s *queueServiceImpl) transition(ctx context.Context, entryID uint64, to model.QueueStatus, fields repository.TransitionFields) (*model.QueueEntry, error) {
	entry, err := s.queueRepo.Transition(ctx, entryID, to, fields)
	if errors.Is(err, repository.ErrEntryNotQueued) {
		existing, gErr := s.queueRepo.GetByID(ctx, entryID)
		if gErr != nil {
			return nil, gErr
		}
		if existing == nil {
			return nil, ErrEntryNotFound
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	metrics.QueueTransitions.WithLabelValues(string(to)).Inc()
	return entry, nil
}

// RunJanitor 删除超过宽限期仍未发布的 queued 记录，其他状态不受影响
func (s *queueServiceImpl) RunJanitor(ctx context.Context) (*JanitorResult, error) {
	cutoff := s.now().Add(-s.graceWindow)
	result := &JanitorResult{Cutoff: cutoff}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		stale, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]*model.QueueEntry, error) {
			return s.queueRepo.ListStale(ctx, cutoff, janitorBatchSize)
		})
		if err != nil {
			return result, err
		}
		if len(stale) == 0 {
			break
		}

		ids := make([]uint64, 0, len(stale))
		for _, entry := range stale {
			ids = append(ids, entry.ID)
			log.InfoContext(ctx, "abandon stale queue entry",
				"entry_id", entry.ID,
				"content_id", entry.SourceContentID,
				"platform", entry.TargetPlatform,
				"scheduled_for", entry.ScheduledFor)
		}

		deleted, err := s.queueRepo.DeleteQueuedByIDs(ctx, ids, cutoff)
		if err != nil {
			return result, err
		}
		result.Deleted += deleted
		metrics.JanitorDeleted.Add(float64(deleted))

		if len(stale) < janitorBatchSize || deleted == 0 {
			break
		}
	}

	if result.Deleted > 0 {
		log.InfoContext(ctx, "queue janitor finished", "deleted", result.Deleted, "cutoff", cutoff)
	}
	return result, nil
}

func (s *queueServiceImpl) Stats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.queueRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	next, err := s.queueRepo.NextScheduled(ctx, s.now())
	if err != nil {
		return nil, err
	}

	totals := map[model.QueueStatus]int64{
		model.QueueStatusQueued: 0,
		model.QueueStatusPosted: 0,
		model.QueueStatusFailed: 0,
	}
	for _, row := range rows {
		totals[row.Status] += row.Count
	}
	return &QueueStats{Rows: rows, Totals: totals, NextScheduledFor: next}, nil
}

// ListDue 到期待发布记录，按计划时间、优先级升序
func (s *queueServiceImpl) ListDue(ctx context.Context, platform string, limit int) ([]*model.QueueEntry, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	if limit > maxDueLimit {
		limit = maxDueLimit
	}
	return s.queueRepo.ListDue(ctx, platform, s.now(), limit)
}

func (s *queueServiceImpl) GetEntry(ctx context.Context, entryID uint64) (*model.QueueEntry, error) {
	entry, err := s.queueRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}
