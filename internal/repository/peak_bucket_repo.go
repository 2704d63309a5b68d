package repository

import (
	"Cadence/internal/model"
	"context"
	"database/sql/driver"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsRetryableWrite 判断累加写入是否确定未生效：死锁回滚、锁等待超时，或连接在发送前即不可用
// 超时、连接中断等结果未知的错误返回 false
func IsRetryableWrite(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDeadlock || mysqlErr.Number == mysqlLockWaitTimeout
	}
	return errors.Is(err, driver.ErrBadConn)
}

type PeakBucketRepo interface {
	UpsertBucket(ctx context.Context, delta *model.BucketDelta) error
	ListByPlatform(ctx context.Context, platform string) ([]*model.PeakEngagementBucket, error)
}

type peakBucketRepoImpl struct {
	db *gorm.DB
}

func NewPeakBucketRepository(db *gorm.DB) PeakBucketRepo {
	return &peakBucketRepoImpl{db: db}
}

// UpsertBucket 单条语句完成读-改-写，同键并发时由行锁串行化，后写者基于前一次的聚合结果计算
// avg_score 必须先于 score_sum/total_samples 赋值，MySQL 按从左到右使用已更新的列值
func (r *peakBucketRepoImpl) UpsertBucket(ctx context.Context, delta *model.BucketDelta) error {
	if delta.Samples <= 0 {
		return nil
	}
	bucket := &model.PeakEngagementBucket{
		Platform:     delta.Key.Platform,
		DayOfWeek:    delta.Key.DayOfWeek,
		HourOfDay:    delta.Key.HourOfDay,
		AvgScore:     delta.ScoreSum / float64(delta.Samples),
		ScoreSum:     delta.ScoreSum,
		TotalSamples: delta.Samples,
		LastUpdated:  delta.At,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "day_of_week"}, {Name: "hour_of_day"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "avg_score"}, Value: gorm.Expr("(score_sum + ?) / (total_samples + ?)", delta.ScoreSum, delta.Samples)},
			{Column: clause.Column{Name: "score_sum"}, Value: gorm.Expr("score_sum + ?", delta.ScoreSum)},
			{Column: clause.Column{Name: "total_samples"}, Value: gorm.Expr("total_samples + ?", delta.Samples)},
			{Column: clause.Column{Name: "last_updated"}, Value: delta.At},
		},
	}).Create(bucket).Error
	if err != nil {
		return errors.Wrapf(err, "upsert bucket %s/%d/%d", delta.Key.Platform, delta.Key.DayOfWeek, delta.Key.HourOfDay)
	}
	return nil
}

// ListByPlatform 按得分排序返回某平台的全部桶，platform 为空时返回全部平台
func (r *peakBucketRepoImpl) ListByPlatform(ctx context.Context, platform string) ([]*model.PeakEngagementBucket, error) {
	buckets := make([]*model.PeakEngagementBucket, 0)
	query := r.db.WithContext(ctx).Model(&model.PeakEngagementBucket{})
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	err := query.
		Order("avg_score DESC").
		Order("total_samples DESC").
		Order("hour_of_day ASC").
		Order("day_of_week ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "list buckets")
	}
	return buckets, nil
}
