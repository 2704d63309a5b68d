package model

import "time"

// EngagementSample 单条历史帖子的表现，仅作为聚合输入，不落库
type EngagementSample struct {
	PostID      string    `json:"post_id"`
	Platform    string    `json:"platform"`
	PostedAt    time.Time `json:"posted_at"`
	Impressions int64     `json:"impressions"`
	Reach       int64     `json:"reach"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
}
