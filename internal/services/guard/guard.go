package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/metrics"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"go.uber.org/zap"
)

// 频率限制记录在最后一次窗口开始后保留多久
const staleRecordAge = 24 * time.Hour

// Limit 某类尝试的窗口限制
type Limit struct {
	Max    int
	Window time.Duration
}

// Failure 一次被拒绝的访问尝试
type Failure struct {
	IP        string
	UserAgent string
	GalleryID *uint64
	Flow      string // password, link_redeem ...
	Reason    string
}

// Report 外部协作方上报的安全事件
type Report struct {
	Type      models.EventType
	Severity  models.Severity
	IP        string
	UserAgent string
	GalleryID *uint64
	Details   map[string]any
}

// GuardService 频率限制与暴力破解防护
// 所有访问入口先调用 Allow，被拒绝后调用 RecordFailure
type GuardService interface {
	// Allow 检查 IP 封禁并消耗一次频率限制额度
	// 被限制时返回 ErrRateLimited，存储不可用时返回 ErrInternalStore (按拒绝处理)
	Allow(ctx context.Context, ip, identifier string, attemptType models.AttemptType) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
	CheckRateLimit(ctx context.Context, identifier string, attemptType models.AttemptType, maxAttempts int, window time.Duration) (bool, error)
	// ResetAttempts 成功后清空计数
	ResetAttempts(ctx context.Context, identifier string, attemptType models.AttemptType)
	// RecordFailure 写入 failed_auth 审计事件，达到阈值时封禁 IP
	RecordFailure(ctx context.Context, f Failure)
	// Escalate 统计窗口内失败次数，达到阈值且尚未封禁时封禁 IP，返回本次是否新增封禁
	Escalate(ctx context.Context, ip string) (bool, error)
	Block(ctx context.Context, ip string, d time.Duration, reason string) error
	ReportSecurityEvent(ctx context.Context, r Report) error
	// SweepStale 清理过期的频率限制记录
	SweepStale(ctx context.Context) (int64, error)
}

type guardService struct {
	repo   repositories.RateLimitRepository
	audit  audit.AuditService
	limits map[models.AttemptType]Limit
	cfg    config.GuardConfig
	now    func() time.Time
}

var _ GuardService = (*guardService)(nil)

type Option func(*guardService)

func WithClock(now func() time.Time) Option {
	return func(g *guardService) { g.now = now }
}

func NewGuardService(repo repositories.RateLimitRepository, auditService audit.AuditService, cfg *config.Config, opts ...Option) GuardService {
	g := &guardService{
		repo:  repo,
		audit: auditService,
		limits: map[models.AttemptType]Limit{
			models.AttemptPassword:   {Max: cfg.RateLimit.PasswordMax, Window: cfg.RateLimit.PasswordWindow},
			models.AttemptLinkRedeem: {Max: cfg.RateLimit.LinkRedeemMax, Window: cfg.RateLimit.LinkRedeemWindow},
		},
		cfg: cfg.Guard,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *guardService) Allow(ctx context.Context, ip, identifier string, attemptType models.AttemptType) error {
	blocked, err := g.IsBlocked(ctx, ip)
	if err != nil {
		logger.Error("Allow: 查询 IP 封禁状态失败，按拒绝处理", zap.String("ip", ip), zap.Error(err))
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if blocked {
		return xerr.Deny(xerr.ErrRateLimited, "ip_blocked")
	}

	limit, ok := g.limits[attemptType]
	if !ok {
		return fmt.Errorf("未配置频率限制的尝试类型 %q: %w", attemptType, xerr.ErrValidation)
	}
	allowed, err := g.CheckRateLimit(ctx, identifier, attemptType, limit.Max, limit.Window)
	if err != nil {
		logger.Error("Allow: 频率限制检查失败，按拒绝处理",
			zap.String("identifier", identifier), zap.String("attemptType", string(attemptType)), zap.Error(err))
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if !allowed {
		return xerr.Deny(xerr.ErrRateLimited, "rate_limited")
	}
	return nil
}

func (g *guardService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	ip = utils.NormalizeIP(ip)
	if ip == "" {
		return false, nil
	}
	until, err := g.repo.BlockedUntil(ctx, ip, models.AttemptBruteForce, g.now())
	if err != nil {
		return false, err
	}
	return until != nil, nil
}

func (g *guardService) CheckRateLimit(ctx context.Context, identifier string, attemptType models.AttemptType, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts < 1 || window <= 0 {
		return false, fmt.Errorf("频率限制参数无效: %w", xerr.ErrValidation)
	}
	return g.repo.Hit(ctx, identifier, attemptType, maxAttempts, window, g.now())
}

func (g *guardService) ResetAttempts(ctx context.Context, identifier string, attemptType models.AttemptType) {
	if err := g.repo.Reset(ctx, identifier, attemptType); err != nil {
		logger.Warn("ResetAttempts: 清空频率限制计数失败", zap.String("identifier", identifier), zap.Error(err))
	}
}

func (g *guardService) RecordFailure(ctx context.Context, f Failure) {
	ip := utils.NormalizeIP(f.IP)
	g.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventFailedAuth,
		Severity:  models.SeverityMedium,
		IP:        ip,
		UserAgent: f.UserAgent,
		GalleryID: f.GalleryID,
		Details:   map[string]any{"flow": f.Flow, "reason": f.Reason},
	})
	g.escalate(ctx, ip, f.UserAgent, f.GalleryID)
}

func (g *guardService) Escalate(ctx context.Context, ip string) (bool, error) {
	return g.tryEscalate(ctx, utils.NormalizeIP(ip), "", nil)
}

func (g *guardService) escalate(ctx context.Context, ip, userAgent string, galleryID *uint64) {
	if _, err := g.tryEscalate(ctx, ip, userAgent, galleryID); err != nil {
		logger.Error("escalate: 暴力破解升级检查失败", zap.String("ip", ip), zap.Error(err))
	}
}

func (g *guardService) tryEscalate(ctx context.Context, ip, userAgent string, galleryID *uint64) (bool, error) {
	if ip == "" {
		return false, nil
	}
	blocked, err := g.IsBlocked(ctx, ip)
	if err != nil || blocked {
		return false, err
	}

	count, err := g.audit.CountFailuresSince(ctx, ip, g.now().Add(-g.cfg.FailureWindow))
	if err != nil {
		return false, fmt.Errorf("统计失败次数失败: %w", err)
	}
	if count < int64(g.cfg.FailureThreshold) {
		return false, nil
	}
	details := map[string]any{"failures": count, "window": g.cfg.FailureWindow.String()}
	if err := g.block(ctx, ip, userAgent, galleryID, g.cfg.BlockDuration, "brute_force", details); err != nil {
		return false, err
	}
	return true, nil
}

func (g *guardService) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	ip = utils.NormalizeIP(ip)
	if ip == "" || d <= 0 {
		return fmt.Errorf("封禁参数无效: %w", xerr.ErrValidation)
	}
	return g.block(ctx, ip, "", nil, d, reason, nil)
}

func (g *guardService) block(ctx context.Context, ip, userAgent string, galleryID *uint64, d time.Duration, reason string, details map[string]any) error {
	now := g.now()
	until := now.Add(d)
	if err := g.repo.Block(ctx, ip, models.AttemptBruteForce, until, reason, now); err != nil {
		return err
	}
	metrics.ObserveBlock(reason)

	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	details["blocked_until"] = until.Format(time.RFC3339)
	g.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventIPBlocked,
		Severity:  models.SeverityCritical,
		IP:        ip,
		UserAgent: userAgent,
		GalleryID: galleryID,
		Details:   details,
	})
	logger.Warn("IP 已被封禁", zap.String("ip", ip), zap.String("reason", reason), zap.Time("until", until))
	return nil
}

func (g *guardService) ReportSecurityEvent(ctx context.Context, r Report) error {
	if r.Type == "" {
		return fmt.Errorf("事件类型不能为空: %w", xerr.ErrValidation)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("未知的严重程度 %q: %w", r.Severity, xerr.ErrValidation)
	}
	ip := utils.NormalizeIP(r.IP)

	g.audit.LogEvent(ctx, audit.Event{
		Type:      r.Type,
		Severity:  r.Severity,
		IP:        ip,
		UserAgent: r.UserAgent,
		GalleryID: r.GalleryID,
		Details:   r.Details,
	})

	switch r.Type {
	case models.EventHashAccessAttempt:
		if ip == "" {
			return nil
		}
		if err := g.block(ctx, ip, r.UserAgent, r.GalleryID, g.cfg.HashProbeBlock, string(models.EventHashAccessAttempt), nil); err != nil {
			return xerr.Wrap(xerr.ErrInternalStore, err)
		}
	case models.EventFailedAuth:
		g.escalate(ctx, ip, r.UserAgent, r.GalleryID)
	}
	return nil
}

func (g *guardService) SweepStale(ctx context.Context) (int64, error) {
	now := g.now()
	return g.repo.DeleteStale(ctx, now.Add(-staleRecordAge), now)
}
