package repository

import (
	"Cadence/internal/model"
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

var (
	// ErrDuplicateActiveEntry 同一 (内容, 平台) 已存在 queued 记录
	ErrDuplicateActiveEntry = errors.New("duplicate active queue entry")
	// ErrEntryNotQueued 记录不存在或已终结
	ErrEntryNotQueued = errors.New("queue entry not in queued state")
)

// TransitionFields 状态流转时一并写入的字段
type TransitionFields struct {
	ExternalPostID string
	ErrorMessage   string
	PostedAt       *time.Time
}

type QueueRepo interface {
	CreateIfAbsent(ctx context.Context, entry *model.QueueEntry) error
	CountScheduledBetween(ctx context.Context, platform string, from, to time.Time) (int64, error)
	Transition(ctx context.Context, entryID uint64, to model.QueueStatus, fields TransitionFields) (*model.QueueEntry, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.QueueEntry, error)
	DeleteQueuedByIDs(ctx context.Context, ids []uint64, cutoff time.Time) (int64, error)
	ListDue(ctx context.Context, platform string, now time.Time, limit int) ([]*model.QueueEntry, error)
	Stats(ctx context.Context) ([]model.QueueStatRow, error)
	NextScheduled(ctx context.Context, now time.Time) (*time.Time, error)
	GetByID(ctx context.Context, entryID uint64) (*model.QueueEntry, error)
}

type queueRepoImpl struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepo {
	return &queueRepoImpl{db: db}
}

// CreateIfAbsent 依赖 uk_active_key 唯一索引做原子条件插入，冲突即返回 ErrDuplicateActiveEntry
func (r *queueRepoImpl) CreateIfAbsent(ctx context.Context, entry *model.QueueEntry) error {
	key := model.ActiveKeyFor(entry.SourceContentID, entry.TargetPlatform)
	entry.ActiveKey = &key
	entry.Status = model.QueueStatusQueued

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateActiveEntry
		}
		return errors.Wrapf(err, "create queue entry %s", key)
	}
	return nil
}

// CountScheduledBetween 某平台在 [from, to) 内已占用的发布位(queued 与 posted)
func (r *queueRepoImpl) CountScheduledBetween(ctx context.Context, platform string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("target_platform = ? AND status IN ?", platform, []model.QueueStatus{model.QueueStatusQueued, model.QueueStatusPosted}).
		Where("scheduled_for >= ? AND scheduled_for < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count active entries")
	}
	return count, nil
}

// Transition 仅允许 queued -> posted/failed，终结时清空 active_key 释放唯一键
func (r *queueRepoImpl) Transition(ctx context.Context, entryID uint64, to model.QueueStatus, fields TransitionFields) (*model.QueueEntry, error) {
	updates := map[string]interface{}{
		"status":     to,
		"active_key": nil,
	}
	if fields.ExternalPostID != "" {
		updates["external_post_id"] = fields.ExternalPostID
	}
	if fields.ErrorMessage != "" {
		updates["error_message"] = fields.ErrorMessage
	}
	if fields.PostedAt != nil {
		updates["posted_at"] = *fields.PostedAt
	}

	var entry *model.QueueEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.QueueEntry{}).
			Where("id = ? AND status = ?", entryID, model.QueueStatusQueued).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEntryNotQueued
		}
		var updated model.QueueEntry
		if err := tx.First(&updated, entryID).Error; err != nil {
			return err
		}
		entry = &updated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEntryNotQueued) {
			return nil, ErrEntryNotQueued
		}
		return nil, errors.Wrapf(err, "transition entry %d to %s", entryID, to)
	}
	return entry, nil
}

// ListStale queued 且排期时间早于 cutoff 的记录
func (r *queueRepoImpl) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.QueueEntry, error) {
	entries := make([]*model.QueueEntry, 0)
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for < ?", model.QueueStatusQueued, cutoff).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "list stale entries")
	}
	return entries, nil
}

// DeleteQueuedByIDs 删除时再次校验状态，避免误删刚被回写为 posted/failed 的记录
func (r *queueRepoImpl) DeleteQueuedByIDs(ctx context.Context, ids []uint64, cutoff time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("id IN ? AND status = ? AND scheduled_for < ?", ids, model.QueueStatusQueued, cutoff).
		Delete(&model.QueueEntry{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "delete stale entries")
	}
	return result.RowsAffected, nil
}

// ListDue 已到发布时间的 queued 记录
func (r *queueRepoImpl) ListDue(ctx context.Context, platform string, now time.Time, limit int) ([]*model.QueueEntry, error) {
	entries := make([]*model.QueueEntry, 0)
	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", model.QueueStatusQueued, now)
	if platform != "" {
		query = query.Where("target_platform = ?", platform)
	}
	err := query.
		Order("scheduled_for ASC").
		Order("priority ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "list due entries")
	}
	return entries, nil
}

func (r *queueRepoImpl) Stats(ctx context.Context) ([]model.QueueStatRow, error) {
	rows := make([]model.QueueStatRow, 0)
	err := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Select("status, target_platform AS platform, COUNT(*) AS count").
		Group("status, target_platform").
		Order("status, target_platform").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "queue stats")
	}
	return rows, nil
}

// NextScheduled 下一条未到期的 queued 时间，没有则返回 nil
func (r *queueRepoImpl) NextScheduled(ctx context.Context, now time.Time) (*time.Time, error) {
	var entry model.QueueEntry
	err := r.db.WithContext(ctx).
		Select("scheduled_for").
		Where("status = ? AND scheduled_for >= ?", model.QueueStatusQueued, now).
		Order("scheduled_for ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "next scheduled entry")
	}
	return &entry.ScheduledFor, nil
}

func (r *queueRepoImpl) GetByID(ctx context.Context, entryID uint64) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := r.db.WithContext(ctx).First(&entry, entryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get queue entry %d", entryID)
	}
	return &entry, nil
}
