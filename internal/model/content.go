package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Content 可(再次)发布的内容，由内容库维护，排期侧只读取并标记
type Content struct {
	ID               uint64     `gorm:"primaryKey" json:"id"`
	Category         string     `gorm:"type:varchar(64);not null;default:''" json:"category"`
	PerformanceScore float64    `gorm:"not null;default:0;index:idx_score" json:"performance_score"`
	LastRepostAt     *time.Time `gorm:"index:idx_last_repost" json:"last_repost_at"`
	RepostCount      int        `gorm:"not null;default:0" json:"repost_count"`
	FingerprintHash  []byte     `gorm:"type:varbinary(64);index:idx_fp_hash" json:"-"`
	SizeBytes        int64      `gorm:"not null;default:0;index:idx_size" json:"size_bytes"`
	DurationSeconds  *float64   `json:"duration_seconds"`
	Caption          string     `gorm:"type:text" json:"caption"`
	Hashtags         StringList `gorm:"type:json" json:"hashtags"`
	MediaURL         string     `gorm:"type:varchar(512)" json:"media_url"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Content) TableName() string {
	return "contents"
}

// Fingerprint 内容指纹
func (c *Content) Fingerprint() ContentFingerprint {
	return ContentFingerprint{
		Hash:            c.FingerprintHash,
		SizeBytes:       c.SizeBytes,
		DurationSeconds: c.DurationSeconds,
	}
}

// Snapshot 排期时的文案快照
func (c *Content) Snapshot() ContentSnapshot {
	tags := make([]string, len(c.Hashtags))
	copy(tags, c.Hashtags)
	return ContentSnapshot{
		Caption:  c.Caption,
		Hashtags: tags,
		MediaURL: c.MediaURL,
		Category: c.Category,
	}
}

// StringList JSON 数组列
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
}
