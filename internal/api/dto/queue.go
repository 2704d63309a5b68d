package dto

import (
	"Cadence/internal/model"
	"time"
)

// BuildWeekDTO 构建一周排期，未填字段使用配置默认值；min_days_between_reposts 可显式传 0
type BuildWeekDTO struct {
	StartDate             string         `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	PerPlatformDailyCap   int            `json:"per_platform_daily_cap" binding:"omitempty,min=1,max=48"`
	MinDaysBetweenReposts *int           `json:"min_days_between_reposts" binding:"omitempty,min=0,max=365"`
	CategoryQuotas        map[string]int `json:"category_quotas"`
	Platforms             []string       `json:"platforms"`
}

// DueQuery 到期待发布查询
type DueQuery struct {
	Platform string `form:"platform" binding:"omitempty,max=32"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// MarkPostedDTO 发布成功回写
type MarkPostedDTO struct {
	ExternalPostID string     `json:"external_post_id" binding:"omitempty,max=128"`
	PostedAt       *time.Time `json:"posted_at"`
}

// MarkFailedDTO 发布失败回写
type MarkFailedDTO struct {
	Error string `json:"error" binding:"required"`
}

// QueueEntryDTO 排期记录
type QueueEntryDTO struct {
	ID              uint64                `json:"id"`
	SourceContentID uint64                `json:"source_content_id"`
	TargetPlatform  string                `json:"target_platform"`
	Priority        int                   `json:"priority"`
	ScheduledFor    time.Time             `json:"scheduled_for"`
	Snapshot        model.ContentSnapshot `json:"snapshot"`
	Status          string                `json:"status"`
	ExternalPostID  string                `json:"external_post_id,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	PostedAt        *time.Time            `json:"posted_at,omitempty"`
}
