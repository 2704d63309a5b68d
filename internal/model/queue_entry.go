package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

type QueueStatus string

const (
	QueueStatusQueued QueueStatus = "queued"
	QueueStatusPosted QueueStatus = "posted"
	QueueStatusFailed QueueStatus = "failed"
)

// IsTerminal posted/failed 不再流转
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusPosted || s == QueueStatusFailed
}

// QueueEntry 排期队列中的一条待发布记录
type QueueEntry struct {
	ID              uint64          `gorm:"primaryKey" json:"id"`
	SourceContentID uint64          `gorm:"not null;index:idx_content_platform" json:"source_content_id"`
	TargetPlatform  string          `gorm:"type:varchar(32);not null;index:idx_content_platform;index:idx_platform_sched" json:"target_platform"`
	Priority        int             `gorm:"not null;default:1" json:"priority"`
	ScheduledFor    time.Time       `gorm:"not null;index:idx_platform_sched;index:idx_status_sched" json:"scheduled_for"`
	Snapshot        ContentSnapshot `gorm:"type:json" json:"snapshot"`
	Status          QueueStatus     `gorm:"type:varchar(16);not null;default:'queued';index:idx_status_sched" json:"status"`
	// ActiveKey 仅在 queued 状态下非空，唯一索引保证同一 (内容, 平台) 至多一条未终结记录
	ActiveKey      *string    `gorm:"type:varchar(96);uniqueIndex:uk_active_key" json:"-"`
	ExternalPostID string     `gorm:"type:varchar(128)" json:"external_post_id,omitempty"`
	ErrorMessage   string     `gorm:"type:varchar(1024)" json:"error_message,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}

// ActiveKeyFor 生成 (内容, 平台) 的未终结唯一键
func ActiveKeyFor(contentID uint64, platform string) string {
	return strconv.FormatUint(contentID, 10) + ":" + platform
}

// ContentSnapshot 入队时冻结的文案与素材
type ContentSnapshot struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	MediaURL string   `json:"media_url"`
	Category string   `json:"category,omitempty"`
}

func (c ContentSnapshot) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ContentSnapshot) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(raw, c)
}

// QueueStatRow 按状态/平台分组计数
type QueueStatRow struct {
	Status   QueueStatus `json:"status"`
	Platform string      `json:"platform"`
	Count    int64       `json:"count"`
}
