package handler

import (
	"Cadence/internal/api/dto"
	"Cadence/internal/pkg/response"
	"Cadence/internal/service"

	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	slotSvc      service.SlotService
	platforms    []string
	defaultLimit int
}

func NewSlotHandler(slotSvc service.SlotService, platforms []string, defaultLimit int) *SlotHandler {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &SlotHandler{
		slotSvc:      slotSvc,
		platforms:    platforms,
		defaultLimit: defaultLimit,
	}
}

// TopSlots 指定平台的最佳时段；未指定平台时返回融合结果
func (h *SlotHandler) TopSlots(c *gin.Context) {
	var query dto.TopSlotsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = h.defaultLimit
	}

	ctx := c.Request.Context()
	if query.Platform != "" {
		slots, err := h.slotSvc.TopSlotsOrDefault(ctx, query.Platform, query.Limit)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, slots)
		return
	}

	slots, err := h.slotSvc.BlendedTopSlots(ctx, h.platforms, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, slots)
}

// Buckets 平台聚合桶原始数据
func (h *SlotHandler) Buckets(c *gin.Context) {
	var query dto.BucketsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	buckets, err := h.slotSvc.Buckets(c.Request.Context(), query.Platform)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, buckets)
}
