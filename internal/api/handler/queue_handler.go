package handler

import (
	"Cadence/internal/api/dto"
	"Cadence/internal/model"
	"Cadence/internal/pkg/response"
	"Cadence/internal/service"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
)

type QueueHandler struct {
	builderSvc service.QueueBuilderService
	queueSvc   service.QueueService
	loc        *time.Location
	now        func() time.Time
}

func NewQueueHandler(builderSvc service.QueueBuilderService, queueSvc service.QueueService, loc *time.Location) *QueueHandler {
	if loc == nil {
		loc = time.Local
	}
	return &QueueHandler{
		builderSvc: builderSvc,
		queueSvc:   queueSvc,
		loc:        loc,
		now:        time.Now,
	}
}

// BuildWeek 构建一周排期，start_date 缺省为明天
func (h *QueueHandler) BuildWeek(c *gin.Context) {
	var req dto.BuildWeekDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	start := h.now().In(h.loc).AddDate(0, 0, 1)
	if req.StartDate != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, req.StartDate, h.loc)
		if err != nil {
			badRequest(c, err)
			return
		}
		start = parsed
	}

	result, err := h.builderSvc.BuildWeek(c.Request.Context(), &service.BuildWeekRequest{
		StartDate:             start,
		PerPlatformDailyCap:   req.PerPlatformDailyCap,
		MinDaysBetweenReposts: req.MinDaysBetweenReposts,
		CategoryQuotas:        req.CategoryQuotas,
		Platforms:             req.Platforms,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// RunJanitor 立即清理过期排期
func (h *QueueHandler) RunJanitor(c *gin.Context) {
	result, err := h.queueSvc.RunJanitor(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queueSvc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// ListDue 发布方拉取到期记录
func (h *QueueHandler) ListDue(c *gin.Context) {
	var query dto.DueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	entries, err := h.queueSvc.ListDue(c.Request.Context(), query.Platform, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toEntryDTOs(entries))
}

func (h *QueueHandler) GetEntry(c *gin.Context) {
	entryID, ok := paramUint64(c, "entry_id")
	if !ok {
		return
	}
	entry, err := h.queueSvc.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toEntryDTO(entry))
}

// MarkPosted 发布成功回写
func (h *QueueHandler) MarkPosted(c *gin.Context) {
	entryID, ok := paramUint64(c, "entry_id")
	if !ok {
		return
	}
	var req dto.MarkPostedDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	var postedAt time.Time
	if req.PostedAt != nil {
		postedAt = *req.PostedAt
	}
	entry, err := h.queueSvc.MarkPosted(c.Request.Context(), entryID, req.ExternalPostID, postedAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toEntryDTO(entry))
}

// MarkFailed 发布失败回写
func (h *QueueHandler) MarkFailed(c *gin.Context) {
	entryID, ok := paramUint64(c, "entry_id")
	if !ok {
		return
	}
	var req dto.MarkFailedDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.queueSvc.MarkFailed(c.Request.Context(), entryID, req.Error)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toEntryDTO(entry))
}

func toEntryDTO(entry *model.QueueEntry) *dto.QueueEntryDTO {
	out := &dto.QueueEntryDTO{}
	_ = copier.Copy(out, entry)
	return out
}

func toEntryDTOs(entries []*model.QueueEntry) []*dto.QueueEntryDTO {
	out := make([]*dto.QueueEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryDTO(entry))
	}
	return out
}
