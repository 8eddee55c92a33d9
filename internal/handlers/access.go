package handlers

import (
	"net/http"

	"github.com/3Eeeecho/gallery-access/internal/handlers/response"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/services/access"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessHandler 访客侧接口，不需要所有者登录
type AccessHandler struct {
	accessService access.AccessService
}

func NewAccessHandler(accessService access.AccessService) *AccessHandler {
	return &AccessHandler{accessService: accessService}
}

type PasswordLoginRequest struct {
	GalleryID uint64 `json:"gallery_id" binding:"required"`
	Password  string `json:"password" binding:"required,max=256"`
}

type SessionTokenRequest struct {
	GalleryID    uint64 `json:"gallery_id" binding:"required"`
	SessionToken string `json:"session_token" binding:"required"`
}

// RedeemLinkRequest alias 与 token 二选一
type RedeemLinkRequest struct {
	Alias    string `json:"alias"`
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"max=256"`
}

type SecurityEventRequest struct {
	EventType models.EventType `json:"event_type" binding:"required"`
	Severity  models.Severity  `json:"severity" binding:"required"`
	ActorIP   string           `json:"actor_ip" binding:"required"`
	UserAgent string           `json:"user_agent"`
	GalleryID *uint64          `json:"gallery_id"`
	Details   map[string]any   `json:"details"`
}

func clientInfo(c *gin.Context) (string, string) {
	return utils.NormalizeIP(c.ClientIP()), utils.TruncateUserAgent(c.Request.UserAgent())
}

// AuthenticateWithPassword 使用画廊密码换取访问会话
// @Summary 密码访问画廊
// @Description 校验画廊密码，成功后返回会话 token。所有拒绝原因对外统一为 access denied
// @Tags 访客访问
// @Accept json
// @Produce json
// @Param request body PasswordLoginRequest true "画廊ID和密码"
// @Success 200 {object} response.Response{data=session.Issued} "会话签发成功"
// @Failure 400 {object} response.Response "请求参数无效"
// @Failure 403 {object} response.Response "访问被拒绝"
// @Failure 429 {object} response.Response "尝试次数过多"
// @Failure 503 {object} response.Response "存储不可用"
// @Router /api/v1/access/password [post]
func (h *AccessHandler) AuthenticateWithPassword(c *gin.Context) {
	var req PasswordLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	ip, ua := clientInfo(c)
	issued, err := h.accessService.AuthenticateWithPassword(c.Request.Context(), access.PasswordRequest{
		GalleryID: req.GalleryID,
		Password:  req.Password,
		ClientIP:  ip,
		UserAgent: ua,
	})
	if err != nil {
		response.AccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "access granted", issued)
}

// ValidateSession 校验会话 token
// @Summary 校验访客会话
// @Description 返回会话是否有效以及 valid/invalid/expired 之一，不消耗频率限制额度
// @Tags 访客访问
// @Accept json
// @Produce json
// @Param request body SessionTokenRequest true "画廊ID和会话 token"
// @Success 200 {object} response.Response{data=session.Validation} "校验结果"
// @Failure 400 {object} response.Response "请求参数无效"
// @Failure 503 {object} response.Response "存储不可用"
// @Router /api/v1/access/session/validate [post]
func (h *AccessHandler) ValidateSession(c *gin.Context) {
	var req SessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	result, err := h.accessService.ValidateSession(c.Request.Context(), req.GalleryID, req.SessionToken)
	if err != nil {
		logger.Error("ValidateSession: 会话校验失败", zap.Uint64("galleryID", req.GalleryID), zap.Error(err))
		response.AccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result.Detail, result)
}

// RotateSession 轮换会话 token
// @Summary 轮换访客会话
// @Description 旧 token 立即失效，返回新的 token 和过期时间
// @Tags 访客访问
// @Accept json
// @Produce json
// @Param request body SessionTokenRequest true "画廊ID和当前会话 token"
// @Success 200 {object} response.Response{data=session.Issued} "轮换成功"
// @Failure 403 {object} response.Response "会话无效或已过期"
// @Router /api/v1/access/session/rotate [post]
func (h *AccessHandler) RotateSession(c *gin.Context) {
	var req SessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	ip, ua := clientInfo(c)
	issued, err := h.accessService.RotateSession(c.Request.Context(), req.GalleryID, req.SessionToken, ip, ua)
	if err != nil {
		response.AccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "session rotated", issued)
}

// RevokeSession 访客退出
// @Summary 撤销访客会话
// @Tags 访客访问
// @Accept json
// @Produce json
// @Param request body SessionTokenRequest true "画廊ID和会话 token"
// @Success 200 {object} response.Response "撤销成功"
// @Failure 403 {object} response.Response "会话无效"
// @Router /api/v1/access/session/revoke [post]
func (h *AccessHandler) RevokeSession(c *gin.Context) {
	var req SessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	ip, ua := clientInfo(c)
	if err := h.accessService.RevokeSession(c.Request.Context(), req.GalleryID, req.SessionToken, ip, ua); err != nil {
		response.AccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "session revoked", nil)
}

// RedeemShareLink 兑换分享链接
// @Summary 兑换分享链接
// @Description 按别名或 token 兑换分享链接，校验有效期、次数、IP、邮箱域名和画廊密码后签发会话
// @Tags 访客访问
// @Accept json
// @Produce json
// @Param request body RedeemLinkRequest true "别名或 token，以及可选的邮箱和密码"
// @Success 200 {object} response.Response{data=sharelink.Redemption} "兑换成功"
// @Failure 400 {object} response.Response "请求参数无效"
// @Failure 403 {object} response.Response "访问被拒绝"
// @Failure 429 {object} response.Response "尝试次数过多"
// @Router /api/v1/access/links/redeem [post]
func (h *AccessHandler) RedeemShareLink(c *gin.Context) {
	var req RedeemLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}
	if req.Alias == "" && req.Token == "" {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "alias 或 token 不能同时为空")
		return
	}

	ip, ua := clientInfo(c)
	r, err := h.accessService.RedeemShareLink(c.Request.Context(), sharelink.RedeemInput{
		Alias:     req.Alias,
		Token:     req.Token,
		ClientIP:  ip,
		UserAgent: ua,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		response.AccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "access granted", r)
}

// ReportSecurityEvent 协作方上报安全事件
// @Summary 上报安全事件
// @Description 画廊管理应用上报可疑行为，hash_access_attempt 会立即封禁来源 IP
// @Tags 安全
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SecurityEventRequest true "事件内容"
// @Success 202 {object} response.Response "已记录"
// @Failure 400 {object} response.Response "事件类型或严重程度无效"
// @Router /api/v1/security-events [post]
func (h *AccessHandler) ReportSecurityEvent(c *gin.Context) {
	var req SecurityEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	err := h.accessService.ReportSecurityEvent(c.Request.Context(), guard.Report{
		Type:      req.EventType,
		Severity:  req.Severity,
		IP:        utils.NormalizeIP(req.ActorIP),
		UserAgent: utils.TruncateUserAgent(req.UserAgent),
		GalleryID: req.GalleryID,
		Details:   req.Details,
	})
	if err != nil {
		response.OwnerError(c, err, "记录安全事件失败")
		return
	}
	response.Success(c, http.StatusAccepted, "event recorded", nil)
}
