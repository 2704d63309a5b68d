package dto

// TopSlotsQuery platform 为空时返回各平台融合后的时段
type TopSlotsQuery struct {
	Platform string `form:"platform" binding:"omitempty,max=32"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=168"`
}

type BucketsQuery struct {
	Platform string `form:"platform" binding:"required,max=32"`
}
