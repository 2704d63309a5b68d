package handler

import (
	"Cadence/internal/api/dto"
	"Cadence/internal/pkg/consts"
	"Cadence/internal/pkg/response"
	"Cadence/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultRecentRuns = 20

type AnalysisHandler struct {
	analysisSvc service.AnalysisService
}

func NewAnalysisHandler(analysisSvc service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisSvc: analysisSvc,
	}
}

// Run 立即执行一次分析，已有运行时返回 busy 状态
func (h *AnalysisHandler) Run(c *gin.Context) {
	var req dto.RunAnalysisDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	var platforms []string
	if req.Platform != "" {
		platforms = []string{req.Platform}
	}

	run, err := h.analysisSvc.Run(c.Request.Context(), consts.TriggerManual, platforms)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, run)
}

// RecentRuns 最近的分析记录
func (h *AnalysisHandler) RecentRuns(c *gin.Context) {
	var query dto.RecentRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultRecentRuns
	}

	runs, err := h.analysisSvc.RecentRuns(c.Request.Context(), query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, runs)
}
