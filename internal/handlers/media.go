package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/storage"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaHandler 为持有有效会话的访客签发媒体对象的临时下载地址
// 会话校验由 GallerySessionMiddleware 完成
type MediaHandler struct {
	storageService storage.StorageService
	expiry         time.Duration
}

func NewMediaHandler(storageService storage.StorageService, cfg *config.Config) *MediaHandler {
	expiry := cfg.Storage.PresignedURLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &MediaHandler{storageService: storageService, expiry: expiry}
}

// mediaObjectKey 把路径中的对象名限制在画廊自己的前缀下
func mediaObjectKey(galleryID uint64, raw string) (string, bool) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" || strings.Contains(raw, "..") {
		return "", false
	}
	cleaned := path.Clean("/" + raw)[1:]
	if cleaned == "" {
		return "", false
	}
	return fmt.Sprintf("galleries/%d/%s", galleryID, cleaned), true
}

// GetMediaURL 获取媒体文件的预签名下载地址
// @Summary 媒体下载地址
// @Description 需要在 X-Gallery-Session 请求头中携带该画廊的有效会话 token
// @Tags 媒体
// @Produce json
// @Param gallery_id path int true "画廊ID"
// @Param object path string true "画廊内的对象路径"
// @Param X-Gallery-Session header string true "访客会话 token"
// @Success 200 {object} response.Response "预签名地址"
// @Failure 401 {object} response.Response "会话无效或已过期"
// @Failure 503 {object} response.Response "对象存储不可用"
// @Router /api/v1/galleries/{gallery_id}/media/{object} [get]
func (h *MediaHandler) GetMediaURL(c *gin.Context) {
	galleryID, ok := c.Get(utils.ContextSessionGallery)
	if !ok {
		response.Error(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "gallery session required")
		return
	}
	gid := galleryID.(uint64)

	key, ok := mediaObjectKey(gid, c.Param("object"))
	if !ok {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的对象路径")
		return
	}

	url, err := h.storageService.PreSignGetObjectURL(c.Request.Context(), h.storageService.DefaultBucket(), key, h.expiry)
	if err != nil {
		logger.Error("GetMediaURL: 生成预签名地址失败", zap.Uint64("galleryID", gid), zap.String("object", key), zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, xerr.StorageErrorCode, "storage unavailable")
		return
	}
	response.Success(c, http.StatusOK, "ok", gin.H{
		"url":        url,
		"expires_in": int(h.expiry.Seconds()),
	})
}
