// Package access 访客访问画廊的统一入口
// 每个入口先经过 guard，再交给凭证或分享链接校验，成功后签发会话，所有结果写入审计日志
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/metrics"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"go.uber.org/zap"
)

// 指标和审计中使用的流程名
const (
	FlowPassword   = "password"
	FlowLinkRedeem = "link_redeem"
	FlowRotate     = "rotate"
	FlowRevoke     = "revoke"
)

// PasswordRequest 密码访问请求
type PasswordRequest struct {
	GalleryID uint64
	Password  string
	ClientIP  string
	UserAgent string
}

// AccessService 访客侧操作
type AccessService interface {
	AuthenticateWithPassword(ctx context.Context, req PasswordRequest) (*session.Issued, error)
	// ValidateSession 不经过频率限制
	ValidateSession(ctx context.Context, galleryID uint64, rawToken string) (*session.Validation, error)
	RotateSession(ctx context.Context, galleryID uint64, rawToken, clientIP, userAgent string) (*session.Issued, error)
	RevokeSession(ctx context.Context, galleryID uint64, rawToken, clientIP, userAgent string) error
	RedeemShareLink(ctx context.Context, in sharelink.RedeemInput) (*sharelink.Redemption, error)
	CreateShareLink(ctx context.Context, ownerID uint64, in sharelink.CreateLinkInput) (*sharelink.CreatedLink, error)
	ReportSecurityEvent(ctx context.Context, r guard.Report) error

	// RevokeAllSessions 所有者撤销画廊的全部会话
	RevokeAllSessions(ctx context.Context, ownerID, galleryID uint64, clientIP string) (int64, error)
	// ListAuditEvents 所有者查看画廊最近的审计事件
	ListAuditEvents(ctx context.Context, ownerID, galleryID uint64, limit int) ([]models.AuditEvent, error)
}

type accessService struct {
	guard       guard.GuardService
	credentials credential.CredentialService
	sessions    session.SessionService
	links       sharelink.LinkService
	audit       audit.AuditService
}

var _ AccessService = (*accessService)(nil)

func NewAccessService(
	guardService guard.GuardService,
	credentials credential.CredentialService,
	sessions session.SessionService,
	links sharelink.LinkService,
	auditService audit.AuditService,
) AccessService {
	return &accessService{
		guard:       guardService,
		credentials: credentials,
		sessions:    sessions,
		links:       links,
		audit:       auditService,
	}
}

// reject 统一处理失败结果
// 拒绝和频率限制记为 failed_auth 并触发升级检查；参数错误和存储错误只记录日志
func (s *accessService) reject(ctx context.Context, flow, ip, userAgent string, galleryID *uint64, err error) error {
	switch {
	case xerr.IsDenial(err), errors.Is(err, xerr.ErrRateLimited):
		result := "denied"
		if errors.Is(err, xerr.ErrRateLimited) {
			result = "rate_limited"
		}
		metrics.ObserveAccess(flow, result)
		s.guard.RecordFailure(ctx, guard.Failure{
			IP:        ip,
			UserAgent: userAgent,
			GalleryID: galleryID,
			Flow:      flow,
			Reason:    xerr.ReasonOf(err),
		})
	case errors.Is(err, xerr.ErrValidation):
		metrics.ObserveAccess(flow, "invalid")
	default:
		metrics.ObserveAccess(flow, "error")
		logger.Error("访问请求处理失败", zap.String("flow", flow), zap.String("ip", ip), zap.Error(err))
	}
	return err
}

func (s *accessService) AuthenticateWithPassword(ctx context.Context, req PasswordRequest) (*session.Issued, error) {
	ip := utils.NormalizeIP(req.ClientIP)
	if req.GalleryID == 0 {
		return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, nil, fmt.Errorf("画廊ID不能为空: %w", xerr.ErrValidation))
	}
	galleryID := req.GalleryID
	identifier := fmt.Sprintf("%s:%d", ip, galleryID)

	if err := s.guard.Allow(ctx, ip, identifier, models.AttemptPassword); err != nil {
		return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID, err)
	}

	result, err := s.credentials.VerifyPassword(ctx, galleryID, req.Password, ip)
	if err != nil {
		return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID, err)
	}
	switch result {
	case credential.VerifyInvalid:
		return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID,
			xerr.Deny(xerr.ErrAuthenticationFailure, "wrong_password"))
	case credential.VerifyNoPasswordSet:
		// 未设密码的私有画廊只能通过分享链接访问
		gallery, err := s.credentials.GetGallery(ctx, galleryID)
		if err != nil {
			return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID, err)
		}
		if !gallery.IsPublic {
			return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID,
				xerr.Deny(xerr.ErrForbidden, "no_password_set"))
		}
	}

	issued, err := s.sessions.CreateSession(ctx, galleryID, ip, req.UserAgent)
	if err != nil {
		return nil, s.reject(ctx, FlowPassword, ip, req.UserAgent, &galleryID, err)
	}
	s.guard.ResetAttempts(ctx, identifier, models.AttemptPassword)

	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventSessionCreated,
		Severity:  models.SeverityLow,
		IP:        ip,
		UserAgent: req.UserAgent,
		GalleryID: &galleryID,
		Details:   map[string]any{"flow": FlowPassword, "session_id": issued.SessionID},
	})
	metrics.ObserveAccess(FlowPassword, "success")
	metrics.ObserveSessionIssued(FlowPassword)
	return issued, nil
}

func (s *accessService) ValidateSession(ctx context.Context, galleryID uint64, rawToken string) (*session.Validation, error) {
	return s.sessions.ValidateSession(ctx, galleryID, rawToken)
}

func (s *accessService) RotateSession(ctx context.Context, galleryID uint64, rawToken, clientIP, userAgent string) (*session.Issued, error) {
	issued, err := s.sessions.RotateSession(ctx, galleryID, rawToken)
	if err != nil {
		result := "denied"
		if errors.Is(err, xerr.ErrInternalStore) {
			result = "error"
		}
		metrics.ObserveAccess(FlowRotate, result)
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventSessionRotated,
		Severity:  models.SeverityLow,
		IP:        clientIP,
		UserAgent: userAgent,
		GalleryID: &galleryID,
	})
	metrics.ObserveAccess(FlowRotate, "success")
	metrics.ObserveSessionIssued(FlowRotate)
	return issued, nil
}

func (s *accessService) RevokeSession(ctx context.Context, galleryID uint64, rawToken, clientIP, userAgent string) error {
	if err := s.sessions.RevokeSession(ctx, galleryID, rawToken); err != nil {
		metrics.ObserveAccess(FlowRevoke, "denied")
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventSessionRevoked,
		Severity:  models.SeverityLow,
		IP:        clientIP,
		UserAgent: userAgent,
		GalleryID: &galleryID,
	})
	metrics.ObserveAccess(FlowRevoke, "success")
	return nil
}

func (s *accessService) RedeemShareLink(ctx context.Context, in sharelink.RedeemInput) (*sharelink.Redemption, error) {
	ip := utils.NormalizeIP(in.ClientIP)
	in.ClientIP = ip

	if err := s.guard.Allow(ctx, ip, ip, models.AttemptLinkRedeem); err != nil {
		return nil, s.reject(ctx, FlowLinkRedeem, ip, in.UserAgent, nil, err)
	}

	r, err := s.links.RedeemLink(ctx, in)
	if err != nil {
		return nil, s.reject(ctx, FlowLinkRedeem, ip, in.UserAgent, nil, err)
	}

	galleryID := r.Session.GalleryID
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventLinkRedeemed,
		Severity:  models.SeverityLow,
		IP:        ip,
		UserAgent: in.UserAgent,
		GalleryID: &galleryID,
		Details: map[string]any{
			"link_id":        r.LinkID,
			"link_type":      string(r.LinkType),
			"remaining_uses": r.RemainingUses,
			"session_id":     r.Session.SessionID,
		},
	})
	metrics.ObserveAccess(FlowLinkRedeem, "success")
	metrics.ObserveSessionIssued(FlowLinkRedeem)
	return r, nil
}

func (s *accessService) CreateShareLink(ctx context.Context, ownerID uint64, in sharelink.CreateLinkInput) (*sharelink.CreatedLink, error) {
	return s.links.CreateLink(ctx, ownerID, in)
}

func (s *accessService) ReportSecurityEvent(ctx context.Context, r guard.Report) error {
	return s.guard.ReportSecurityEvent(ctx, r)
}

func (s *accessService) RevokeAllSessions(ctx context.Context, ownerID, galleryID uint64, clientIP string) (int64, error) {
	if _, err := s.credentials.GetOwnedGallery(ctx, ownerID, galleryID); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAllForGallery(ctx, galleryID)
	if err != nil {
		return 0, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventSessionRevoked,
		Severity:  models.SeverityMedium,
		IP:        utils.NormalizeIP(clientIP),
		GalleryID: &galleryID,
		Details:   map[string]any{"scope": "all", "revoked": n, "owner_id": ownerID},
	})
	return n, nil
}

func (s *accessService) ListAuditEvents(ctx context.Context, ownerID, galleryID uint64, limit int) ([]models.AuditEvent, error) {
	if _, err := s.credentials.GetOwnedGallery(ctx, ownerID, galleryID); err != nil {
		return nil, err
	}
	return s.audit.ListGalleryEvents(ctx, galleryID, limit)
}
