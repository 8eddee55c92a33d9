package xerr

import "errors"

// 访问控制错误分类，服务层统一用 fmt.Errorf("...: %w", ErrX) 包裹返回
var (
	ErrValidation            = errors.New("参数验证失败")
	ErrAuthenticationFailure = errors.New("认证失败")
	ErrNotFound              = errors.New("资源不存在")
	ErrExpired               = errors.New("已过期")
	ErrExhausted             = errors.New("使用次数已用尽")
	ErrRateLimited           = errors.New("尝试次数过多，请稍后再试")
	ErrForbidden             = errors.New("禁止访问")
	ErrInternalStore         = errors.New("存储服务不可用")
)

// 所有者侧操作使用的错误
var (
	ErrUnauthorized     = errors.New("用户未授权")
	ErrTokenInvalid     = errors.New("认证 Token 无效或已过期")
	ErrPermissionDenied = errors.New("您没有操作此画廊的权限")
	ErrWeakPassword     = errors.New("密码强度不足")
	ErrAliasTaken       = errors.New("该别名已被有效链接占用")
	ErrLinkStillActive  = errors.New("分享链接仍然有效，请先停用")
	ErrStorageError     = errors.New("对象存储操作失败")
)
