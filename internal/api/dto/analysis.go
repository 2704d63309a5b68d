package dto

// RunAnalysisDTO 手动触发分析，platform 为空时分析全部平台
type RunAnalysisDTO struct {
	Platform string `json:"platform" binding:"omitempty,max=32"`
}

// RecentRunsQuery 分析历史查询
type RecentRunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
