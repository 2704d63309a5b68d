package model

import (
	"time"
)

// PeakEngagementBucket 按 (平台, 星期, 小时) 聚合的互动得分
type PeakEngagementBucket struct {
	ID           uint64    `gorm:"primaryKey" json:"-"`
	Platform     string    `gorm:"type:varchar(32);not null;index:idx_platform_day_hour,unique" json:"platform"`
	DayOfWeek    int       `gorm:"not null;index:idx_platform_day_hour,unique" json:"day_of_week"`
	HourOfDay    int       `gorm:"not null;index:idx_platform_day_hour,unique" json:"hour_of_day"`
	AvgScore     float64   `gorm:"not null;default:0" json:"avg_score"`
	ScoreSum     float64   `gorm:"not null;default:0" json:"-"` // 历史得分累加，avg_score = score_sum / total_samples
	TotalSamples int64     `gorm:"not null;default:0" json:"total_samples"`
	LastUpdated  time.Time `gorm:"not null" json:"last_updated"`
}

func (PeakEngagementBucket) TableName() string {
	return "peak_engagement_buckets"
}

// BucketKey 聚合键
type BucketKey struct {
	Platform  string
	DayOfWeek int
	HourOfDay int
}

// BucketDelta 一次 Ingest 中同一键下的新增样本
type BucketDelta struct {
	Key      BucketKey
	ScoreSum float64
	Samples  int64
	At       time.Time
}
