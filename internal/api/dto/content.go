package dto

// DuplicateCheckDTO 对媒体桶中的对象做近期重复检测
type DuplicateCheckDTO struct {
	ObjectKey           string `json:"object_key" binding:"required,max=512"`
	DeclaredName        string `json:"declared_name" binding:"omitempty,max=255"`
	MinDaysBeforeRepost int    `json:"min_days_before_repost" binding:"omitempty,min=1,max=365"`
}

// ContentDuplicateQuery 已入库内容的重复检测
type ContentDuplicateQuery struct {
	MinDays int `form:"min_days" binding:"omitempty,min=1,max=365"`
}

// FingerprintDTO 指纹摘要
type FingerprintDTO struct {
	Hash            string   `json:"hash"`
	SizeBytes       int64    `json:"size_bytes"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// DuplicateCheckResultDTO 重复检测结果
type DuplicateCheckResultDTO struct {
	Fingerprint       *FingerprintDTO `json:"fingerprint,omitempty"`
	IsDuplicate       bool            `json:"is_duplicate"`
	DaysSinceLastPost int             `json:"days_since_last_post"`
	Confidence        float64         `json:"confidence"`
	MatchedContentID  uint64          `json:"matched_content_id,omitempty"`
}
