package handler

import (
	"Cadence/internal/pkg/response"
	"Cadence/internal/service"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// badRequest 绑定或校验失败统一按参数错误返回
func badRequest(c *gin.Context, err error) {
	response.Error(c, fmt.Errorf("%w: %v", service.ErrParamInvalid, err))
}

func paramUint64(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, service.ErrParamInvalid)
		return 0, false
	}
	return id, true
}
