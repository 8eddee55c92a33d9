package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/services/access"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GalleryHandler 所有者管理画廊访问策略
type GalleryHandler struct {
	credentialService credential.CredentialService
	accessService     access.AccessService
}

func NewGalleryHandler(credentialService credential.CredentialService, accessService access.AccessService) *GalleryHandler {
	return &GalleryHandler{
		credentialService: credentialService,
		accessService:     accessService,
	}
}

type RegisterGalleryRequest struct {
	GalleryID uint64 `json:"gallery_id"` // 为空时自动分配
}

type SetPasswordRequest struct {
	Password string `json:"password" binding:"required,max=256"`
}

// galleryIDParam 解析路径中的 gallery_id，失败时已写入响应
func galleryIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("gallery_id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的画廊ID")
		return 0, false
	}
	return id, true
}

// RegisterGallery 注册画廊的访问记录
// @Summary 注册画廊
// @Description 为画廊管理应用中的画廊创建访问控制记录，初始为私有且无密码
// @Tags 画廊
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterGalleryRequest false "可选的画廊ID"
// @Success 201 {object} response.Response{data=models.Gallery} "注册成功"
// @Failure 400 {object} response.Response "画廊ID已存在"
// @Router /api/v1/galleries [post]
func (h *GalleryHandler) RegisterGallery(c *gin.Context) {
	var req RegisterGalleryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
			return
		}
	}

	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	gallery, err := h.credentialService.Register(c.Request.Context(), ownerID, req.GalleryID)
	if err != nil {
		logger.Error("RegisterGallery: 注册画廊失败", zap.Uint64("ownerID", ownerID), zap.Error(err))
		response.OwnerError(c, err, "注册画廊失败")
		return
	}
	response.Success(c, http.StatusCreated, "gallery registered", gallery)
}

// SetPassword 设置或修改画廊密码
// @Summary 设置画廊密码
// @Description 密码需满足强度要求且不在泄露列表中。修改密码不会使已签发的会话失效
// @Tags 画廊
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Param request body SetPasswordRequest true "新密码"
// @Success 200 {object} response.Response "设置成功"
// @Failure 400 {object} response.Response "密码强度不足"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/password [put]
func (h *GalleryHandler) SetPassword(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	var req SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	if err := h.credentialService.SetPassword(c.Request.Context(), ownerID, galleryID, req.Password, ip); err != nil {
		response.OwnerError(c, err, "设置画廊密码失败")
		return
	}
	response.Success(c, http.StatusOK, "password updated", nil)
}

// MakePublic 公开画廊
// @Summary 公开画廊
// @Description 清除画廊密码并允许无密码访问
// @Tags 画廊
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Success 200 {object} response.Response "已公开"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/public [put]
func (h *GalleryHandler) MakePublic(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	if err := h.credentialService.MakePublic(c.Request.Context(), ownerID, galleryID, ip); err != nil {
		response.OwnerError(c, err, "公开画廊失败")
		return
	}
	response.Success(c, http.StatusOK, "gallery is public", nil)
}

// RevokeAllSessions 撤销画廊的全部访客会话
// @Summary 撤销全部会话
// @Tags 画廊
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Success 200 {object} response.Response "撤销的会话数量"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/sessions [delete]
func (h *GalleryHandler) RevokeAllSessions(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}

	ip, _ := clientInfo(c)
	n, err := h.accessService.RevokeAllSessions(c.Request.Context(), ownerID, galleryID, ip)
	if err != nil {
		response.OwnerError(c, err, "撤销会话失败")
		return
	}
	response.Success(c, http.StatusOK, "sessions revoked", gin.H{"revoked": n})
}

// ListAuditEvents 查看画廊的安全审计事件
// @Summary 画廊审计事件
// @Tags 画廊
// @Produce json
// @Security BearerAuth
// @Param gallery_id path int true "画廊ID"
// @Param limit query int false "返回条数，默认 100，最大 500"
// @Success 200 {object} response.Response{data=[]models.AuditEvent} "事件列表"
// @Failure 403 {object} response.Response "非画廊所有者"
// @Router /api/v1/galleries/{gallery_id}/audit-events [get]
func (h *GalleryHandler) ListAuditEvents(c *gin.Context) {
	galleryID, ok := galleryIDParam(c)
	if !ok {
		return
	}
	ownerID, ok := utils.GetOwnerIDFromContext(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.accessService.ListAuditEvents(c.Request.Context(), ownerID, galleryID, limit)
	if err != nil {
		response.OwnerError(c, err, "查询审计事件失败")
		return
	}
	response.Success(c, http.StatusOK, "ok", events)
}
