package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/services/access"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShareLinkHandler struct {
	accessService access.AccessService
	linkService   sharelink.LinkService
}

func NewShareLinkHandler(accessService access.AccessService, linkService sharelink.LinkService) *ShareLinkHandler {
	return &ShareLinkHandler{
		accessService: accessService,
		linkService:   linkService,
	}
}

type CreateShareLinkRequest struct {
	Type           models.LinkType `json:"type" binding:"required"`
	Alias          string          `json:"alias"`
	Description    string          `json:"description" binding:"max=255"`
	ExpiresInDays  int             `json:"expires_in_days"` // 为 0 时使用默认有效期
	MaxUses        *int            `json:"max_uses"`
	EmailDomains   []string        `json:"email_domains"`
	IPRestrictions []string        `json:"ip_restrictions"`
}

func linkIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("link_id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的链接ID")
		return 0, false
	}
	return id, true
}

// CreateShareLink 创建分享链接
// @Summary 创建分享链接
// @Description 为画廊创建分享链接。未设置别名时返回一次性展示的随机 token，服务端只保存其哈希
// @Tags 分享链接
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Param request body CreateShareLinkRequest true "链接设置"
// @Success 201 {object} response.Response{data=sharelink.CreatedLink} "创建成功"
// @Failure 400 {object} response.Response "参数无效或别名已被占用"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/links [post]
func (h *ShareLinkHandler) CreateShareLink(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	var req CreateShareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	created, err := h.accessService.CreateShareLink(c.Request.Context(), ownerID, sharelink.CreateLinkInput{
		GalleryID:      galleryID,
		Type:           req.Type,
		Alias:          req.Alias,
		Description:    req.Description,
		ExpiresInDays:  req.ExpiresInDays,
		MaxUses:        req.MaxUses,
		EmailDomains:   req.EmailDomains,
		IPRestrictions: req.IPRestrictions,
		ClientIP:       ip,
	})
	if err != nil {
		logger.Warn("CreateShareLink: 创建分享链接失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
		response.OwnerError(c, err, "创建分享链接失败")
		return
	}
	response.Success(c, http.StatusCreated, "share link created", created)
}

// ListShareLinks 列出画廊的分享链接
// @Summary 分享链接列表
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Success 200 {object} response.Response{data=[]models.ShareLink} "链接列表"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/links [get]
func (h *ShareLinkHandler) ListShareLinks(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	links, err := h.linkService.ListLinks(c.Request.Context(), ownerID, galleryID)
	if err != nil {
		response.OwnerError(c, err, "查询分享链接失败")
		return
	}
	response.Success(c, http.StatusOK, "ok", links)
}

// DeactivateShareLink 停用分享链接
// @Summary 停用分享链接
// @Description 停用后别名立即释放，重复停用视为成功
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param link_id path int true "链接ID"
// @Success 200 {object} response.Response "已停用"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Failure 404 {object} response.Response "链接不存在"
// @Router /api/v1/links/{link_id}/deactivate [post]
func (h *ShareLinkHandler) DeactivateShareLink(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	if err := h.linkService.DeactivateLink(c.Request.Context(), ownerID, linkID, ip); err != nil {
		response.OwnerError(c, err, "停用分享链接失败")
		return
	}
	response.Success(c, http.StatusOK, "share link deactivated", nil)
}

// DeleteShareLink 删除已停用的分享链接
// @Summary 删除分享链接
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param link_id path int true "链接ID"
// @Success 200 {object} response.Response "已删除"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Failure 404 {object} response.Response "链接不存在"
// @Failure 409 {object} response.Response "链接仍然有效"
// @Router /api/v1/links/{link_id} [delete]
func (h *ShareLinkHandler) DeleteShareLink(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	if err := h.linkService.DeleteLink(c.Request.Context(), ownerID, linkID, ip); err != nil {
		response.OwnerError(c, err, "删除分享链接失败")
		return
	}
	response.Success(c, http.StatusOK, "share link deleted", nil)
}
