package kafka

import (
	"Cadence/internal/model"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/service"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// PublishResultMessage 发布方回写的结果
type PublishResultMessage struct {
	EntryID        uint64     `json:"entry_id"`
	Status         string     `json:"status"`
	ExternalPostID string     `json:"external_post_id"`
	Error          string     `json:"error"`
	PostedAt       *time.Time `json:"posted_at"`
}

// QueueWriteBack 排期状态回写
type QueueWriteBack interface {
	MarkPosted(ctx context.Context, entryID uint64, externalPostID string, postedAt time.Time) (*model.QueueEntry, error)
	MarkFailed(ctx context.Context, entryID uint64, reason string) (*model.QueueEntry, error)
}

type PublishResultHandler struct {
	queue QueueWriteBack
}

func NewPublishResultHandler(queue QueueWriteBack) *PublishResultHandler {
	return &PublishResultHandler{queue: queue}
}

func (h *PublishResultHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("publish result consumer setup")
	return nil
}

func (h *PublishResultHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("publish result consumer cleanup")
	return nil
}

func (h *PublishResultHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-publish-result consume claim", "partition", claim.Partition())
	err := pullMessageBatch(session, claim, h.logic)
	if err != nil {
		log.Error("topic-publish-result process batch error", "err", err)
		return err
	}
	return nil
}

// logic 格式错误与非法流转直接确认丢弃，其余错误交由批处理重试
func (h *PublishResultHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = logger.WithTraceID(ctx, "kafka-publish-"+uuid.New().String())

	var result PublishResultMessage
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		log.WarnContext(ctx, "drop malformed publish result", "offset", msg.Offset, "err", err)
		return nil
	}
	if result.EntryID == 0 {
		log.WarnContext(ctx, "drop publish result without entry id", "offset", msg.Offset)
		return nil
	}

	var err error
	switch model.QueueStatus(result.Status) {
	case model.QueueStatusPosted:
		postedAt := time.Now()
		if result.PostedAt != nil {
			postedAt = *result.PostedAt
		}
		_, err = h.queue.MarkPosted(ctx, result.EntryID, result.ExternalPostID, postedAt)
	case model.QueueStatusFailed:
		_, err = h.queue.MarkFailed(ctx, result.EntryID, result.Error)
	default:
		log.WarnContext(ctx, "drop publish result with unknown status", "entry_id", result.EntryID, "status", result.Status)
		return nil
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrEntryNotFound) || errors.Is(err, service.ErrParamInvalid) {
		log.WarnContext(ctx, "publish result rejected", "entry_id", result.EntryID, "status", result.Status, "err", err)
		return nil
	}
	return fmt.Errorf("write back entry %d: %w", result.EntryID, err)
}
