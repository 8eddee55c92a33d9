package response

import (
	"errors"
	"net/http"

	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据
}

// 访客侧所有拒绝原因对外统一为同一条消息，避免泄露链接或画廊是否存在
const accessDeniedMessage = "access denied"

// JSONResponse 发送标准 JSON 响应
func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, xerr.SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort()
}

// AccessError 把访问流程中的错误映射为对外响应
// 认证失败、不存在、过期、用尽、禁止 一律返回相同的 403，仅频率限制和参数错误区分
func AccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, xerr.ErrRateLimited):
		c.Header("Retry-After", "900")
		Error(c, http.StatusTooManyRequests, xerr.RateLimitedCode, xerr.ErrRateLimited.Error())
	case errors.Is(err, xerr.ErrValidation):
		Error(c, http.StatusBadRequest, xerr.ValidationFailedCode, "invalid request")
	case errors.Is(err, xerr.ErrInternalStore):
		Error(c, http.StatusServiceUnavailable, xerr.StoreUnavailableCode, "service temporarily unavailable")
	case xerr.CodeOf(err) == xerr.AccessDeniedCode:
		Error(c, http.StatusForbidden, xerr.AccessDeniedCode, accessDeniedMessage)
	default:
		Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "internal error")
	}
}

// OwnerError 把所有者侧管理接口的错误映射为响应，所有者可以看到具体原因
func OwnerError(c *gin.Context, err error, fallback string) {
	code := xerr.CodeOf(err)
	switch code {
	case xerr.ValidationFailedCode, xerr.WeakPasswordCode, xerr.AliasTakenCode:
		Error(c, http.StatusBadRequest, code, err.Error())
	case xerr.PermissionDeniedCode:
		Error(c, http.StatusForbidden, code, xerr.ErrPermissionDenied.Error())
	case xerr.LinkStillActiveCode:
		Error(c, http.StatusConflict, code, xerr.ErrLinkStillActive.Error())
	case xerr.AccessDeniedCode:
		if errors.Is(err, xerr.ErrNotFound) {
			Error(c, http.StatusNotFound, xerr.NotFoundCode, xerr.ErrNotFound.Error())
			return
		}
		Error(c, http.StatusForbidden, xerr.ForbiddenCode, xerr.ErrForbidden.Error())
	case xerr.RateLimitedCode:
		Error(c, http.StatusTooManyRequests, code, xerr.ErrRateLimited.Error())
	case xerr.StoreUnavailableCode:
		Error(c, http.StatusServiceUnavailable, code, fallback)
	default:
		Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, fallback)
	}
}
