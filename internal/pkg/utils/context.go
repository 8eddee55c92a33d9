package utils

import (
	"net/http"

	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Gin 上下文中使用的 key
const (
	ContextOwnerID        = "ownerID"
	ContextOwnerName      = "ownerName"
	ContextSessionGallery = "sessionGalleryID"
)

// GetOwnerIDFromContext 从 Gin 上下文中获取所有者ID
// 获取失败会中止请求并返回错误
func GetOwnerIDFromContext(c *gin.Context) (uint64, bool) {
	ownerID, exists := c.Get(ContextOwnerID)
	if !exists {
		response.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "owner not found in context")
		return 0, false
	}
	id, ok := ownerID.(uint64)
	if !ok {
		response.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "invalid owner id type in context")
		return 0, false
	}
	return id, true
}
