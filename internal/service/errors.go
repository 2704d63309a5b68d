package service

import (
	"errors"
)

const (
	BadRequest          = 400
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
	BadGateway          = 502
)

var (
	ErrParamInvalid       = errors.New("参数错误")
	ErrDataUnavailable    = errors.New("平台数据暂不可用")
	ErrDuplicateSchedule  = errors.New("该内容在此平台已有待发布排期")
	ErrInvalidTransition  = errors.New("排期状态不允许此操作")
	ErrEntryNotFound      = errors.New("排期不存在")
	ErrContentNotFound    = errors.New("内容不存在")
	ErrFingerprintMissing = errors.New("内容缺少指纹")
	ErrBuildInProgress    = errors.New("排期构建进行中，请稍后重试")
	UnExpectedError       = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:       BadRequest,
	ErrDataUnavailable:    BadGateway,
	ErrDuplicateSchedule:  Conflict,
	ErrInvalidTransition:  Conflict,
	ErrEntryNotFound:      NotFound,
	ErrContentNotFound:    NotFound,
	ErrFingerprintMissing: BadRequest,
	ErrBuildInProgress:    Conflict,
	UnExpectedError:       InternalServerError,
}
