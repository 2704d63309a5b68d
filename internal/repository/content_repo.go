package repository

import (
	"Cadence/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ContentRepo interface {
	FindEligibleContent(ctx context.Context, minScore float64, repostCutoff time.Time, limit int) ([]*model.Content, error)
	MarkScheduled(ctx context.Context, contentID uint64, platform string, scheduledFor time.Time) error
	MarkPosted(ctx context.Context, contentID uint64, postedAt time.Time) error
	GetByID(ctx context.Context, contentID uint64) (*model.Content, error)
	FindPostedByHash(ctx context.Context, hash []byte, excludeID uint64) ([]*model.Content, error)
	FindPostedBySizeRange(ctx context.Context, minSize, maxSize int64, excludeID uint64) ([]*model.Content, error)
}

type contentRepoImpl struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) ContentRepo {
	return &contentRepoImpl{db: db}
}

// FindEligibleContent 得分高于下限，且从未转发或上次转发早于 cutoff
func (r *contentRepoImpl) FindEligibleContent(ctx context.Context, minScore float64, repostCutoff time.Time, limit int) ([]*model.Content, error) {
	contents := make([]*model.Content, 0, limit)
	err := r.db.WithContext(ctx).
		Where("performance_score > ?", minScore).
		Where("last_repost_at IS NULL OR last_repost_at <= ?", repostCutoff).
		Order("performance_score DESC").
		Order("id ASC").
		Limit(limit).
		Find(&contents).Error
	if err != nil {
		return nil, errors.Wrap(err, "find eligible content")
	}
	return contents, nil
}

// MarkScheduled 记录内容已排入某平台，last_repost_at 只前进不后退
func (r *contentRepoImpl) MarkScheduled(ctx context.Context, contentID uint64, platform string, scheduledFor time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Content{}).
		Where("id = ?", contentID).
		Updates(map[string]interface{}{
			"last_repost_at": gorm.Expr("CASE WHEN last_repost_at IS NULL OR last_repost_at < ? THEN ? ELSE last_repost_at END", scheduledFor, scheduledFor),
			"repost_count":   gorm.Expr("repost_count + 1"),
		}).Error
	if err != nil {
		return errors.Wrapf(err, "mark content %d scheduled on %s", contentID, platform)
	}
	return nil
}

// MarkPosted 以真实发布时间刷新，同样只前进，不覆盖更晚的排期时间
func (r *contentRepoImpl) MarkPosted(ctx context.Context, contentID uint64, postedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Content{}).
		Where("id = ?", contentID).
		Where("last_repost_at IS NULL OR last_repost_at < ?", postedAt).
		Update("last_repost_at", postedAt).Error
	if err != nil {
		return errors.Wrapf(err, "mark content %d posted", contentID)
	}
	return nil
}

func (r *contentRepoImpl) GetByID(ctx context.Context, contentID uint64) (*model.Content, error) {
	var content model.Content
	err := r.db.WithContext(ctx).First(&content, contentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get content %d", contentID)
	}
	return &content, nil
}

// FindPostedByHash 哈希完全一致且发布/排期过的内容，按最近发布时间倒序
func (r *contentRepoImpl) FindPostedByHash(ctx context.Context, hash []byte, excludeID uint64) ([]*model.Content, error) {
	contents := make([]*model.Content, 0)
	err := r.db.WithContext(ctx).
		Where("fingerprint_hash = ?", hash).
		Where("last_repost_at IS NOT NULL").
		Where("id <> ?", excludeID).
		Order("last_repost_at DESC").
		Find(&contents).Error
	if err != nil {
		return nil, errors.Wrap(err, "find content by hash")
	}
	return contents, nil
}

// FindPostedBySizeRange 大小落在容差窗口内且发布/排期过的内容，按最近发布时间倒序
func (r *contentRepoImpl) FindPostedBySizeRange(ctx context.Context, minSize, maxSize int64, excludeID uint64) ([]*model.Content, error) {
	contents := make([]*model.Content, 0)
	err := r.db.WithContext(ctx).
		Where("size_bytes BETWEEN ? AND ?", minSize, maxSize).
		Where("last_repost_at IS NOT NULL").
		Where("id <> ?", excludeID).
		Order("last_repost_at DESC").
		Find(&contents).Error
	if err != nil {
		return nil, errors.Wrap(err, "find content by size")
	}
	return contents, nil
}
