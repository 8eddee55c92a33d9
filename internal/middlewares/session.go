package middlewares

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHeader 访客会话 token 所在的请求头
const SessionHeader = "X-Gallery-Session"

// GallerySessionMiddleware 要求请求携带对路径中 gallery_id 有效的访客会话
func GallerySessionMiddleware(validator session.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		galleryID, err := strconv.ParseUint(c.Param("gallery_id"), 10, 64)
		if err != nil || galleryID == 0 {
			response.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "invalid gallery id")
			return
		}

		token := c.GetHeader(SessionHeader)
		if token == "" {
			response.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "gallery session required")
			return
		}

		result, err := validator.ValidateSession(c.Request.Context(), galleryID, token)
		if err != nil {
			logger.Error("GallerySessionMiddleware: 会话校验失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
			response.AccessError(c, err)
			c.Abort()
			return
		}
		if !result.Valid {
			response.AbortWithError(c, http.StatusUnauthorized, xerr.TokenInvalidCode, "gallery session "+result.Detail)
			return
		}

		c.Set(utils.ContextSessionGallery, galleryID)
		c.Next()
	}
}
