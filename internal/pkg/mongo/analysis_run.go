package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlatformOutcome 单个平台在一次分析中的结果
type PlatformOutcome struct {
	Platform       string `bson:"platform" json:"platform"`
	Status         string `bson:"status" json:"status"`                   // success / failed
	Samples        int    `bson:"samples" json:"samples"`                 // 拉取到的帖子数
	BucketsTouched int    `bson:"buckets_touched" json:"buckets_touched"` // 写入的桶数
	Error          string `bson:"error,omitempty" json:"error,omitempty"`
	DurationMs     int64  `bson:"duration_ms" json:"duration_ms"`
}

// AnalysisRunModel 一次分析运行的记录
type AnalysisRunModel struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID      string             `bson:"run_id" json:"run_id"`
	Trigger    string             `bson:"trigger" json:"trigger"` // scheduled / manual
	Status     string             `bson:"status" json:"status"`   // success / partial / failed / busy
	Platforms  []*PlatformOutcome `bson:"platforms" json:"platforms"`
	StartedAt  time.Time          `bson:"started_at" json:"started_at"`
	FinishedAt time.Time          `bson:"finished_at" json:"finished_at"`
}
