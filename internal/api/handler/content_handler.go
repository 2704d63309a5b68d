package handler

import (
	"Cadence/internal/api/dto"
	"Cadence/internal/pkg/response"
	"Cadence/internal/service"
	"encoding/hex"

	"github.com/gin-gonic/gin"
)

type ContentHandler struct {
	fingerprintSvc service.FingerprintService
	defaultMinDays int
}

func NewContentHandler(fingerprintSvc service.FingerprintService, defaultMinDays int) *ContentHandler {
	return &ContentHandler{
		fingerprintSvc: fingerprintSvc,
		defaultMinDays: defaultMinDays,
	}
}

// DuplicateCheck 上传前对媒体桶中的对象计算指纹并检测近期是否发过
func (h *ContentHandler) DuplicateCheck(c *gin.Context) {
	var req dto.DuplicateCheckDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.MinDaysBeforeRepost == 0 {
		req.MinDaysBeforeRepost = h.defaultMinDays
	}

	ctx := c.Request.Context()
	fp, err := h.fingerprintSvc.FingerprintObject(ctx, req.ObjectKey, req.DeclaredName)
	if err != nil {
		response.Error(c, err)
		return
	}

	dup, err := h.fingerprintSvc.FindRecentDuplicate(ctx, fp, req.MinDaysBeforeRepost, 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := toDuplicateDTO(dup)
	out.Fingerprint = &dto.FingerprintDTO{
		Hash:            hex.EncodeToString(fp.Hash),
		SizeBytes:       fp.SizeBytes,
		DurationSeconds: fp.DurationSeconds,
	}
	response.Success(c, out)
}

// ContentDuplicate 已入库内容的近期重复检测
func (h *ContentHandler) ContentDuplicate(c *gin.Context) {
	contentID, ok := paramUint64(c, "content_id")
	if !ok {
		return
	}
	var query dto.ContentDuplicateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}
	if query.MinDays == 0 {
		query.MinDays = h.defaultMinDays
	}

	dup, err := h.fingerprintSvc.CheckContent(c.Request.Context(), contentID, query.MinDays)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toDuplicateDTO(dup))
}

func toDuplicateDTO(dup *service.DuplicateResult) *dto.DuplicateCheckResultDTO {
	out := &dto.DuplicateCheckResultDTO{
		IsDuplicate:       dup.IsDuplicate,
		DaysSinceLastPost: dup.DaysSinceLastPost,
		Confidence:        dup.Confidence,
	}
	if dup.MatchedContent != nil {
		out.MatchedContentID = dup.MatchedContent.ID
	}
	return out
}
