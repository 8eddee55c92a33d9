package sharelink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/allowlist"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 未指定有效期时的默认天数
const defaultExpiryDays = 30

const maxDescriptionLen = 255

var aliasPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,63}$`)

// errConsumeMiss 条件更新未命中，需要重新判断原因
var errConsumeMiss = errors.New("share link consume matched no row")

// CreateLinkInput 创建分享链接的参数
type CreateLinkInput struct {
	GalleryID      uint64
	Type           models.LinkType
	Alias          string
	Description    string
	ExpiresInDays  int
	MaxUses        *int
	EmailDomains   []string
	IPRestrictions []string
	ClientIP       string
}

// CreatedLink 新建的链接，RawToken 只返回这一次
type CreatedLink struct {
	Link     *models.ShareLink `json:"link"`
	RawToken string            `json:"token,omitempty"`
	URL      string            `json:"url,omitempty"`
}

// RedeemInput 访客兑换链接的参数，Alias 和 Token 至少提供一个
type RedeemInput struct {
	Alias     string
	Token     string
	ClientIP  string
	UserAgent string
	Email     string
	Password  string
}

// Redemption 兑换成功的结果
type Redemption struct {
	Session       *session.Issued `json:"session"`
	LinkID        uint64          `json:"link_id"`
	LinkType      models.LinkType `json:"link_type"`
	RemainingUses int             `json:"remaining_uses"` // -1 表示不限
}

// LinkService 分享链接的创建、兑换和管理
type LinkService interface {
	CreateLink(ctx context.Context, ownerID uint64, in CreateLinkInput) (*CreatedLink, error)
	// RedeemLink 校验链接约束，在一个事务中消耗一次使用并签发会话
	RedeemLink(ctx context.Context, in RedeemInput) (*Redemption, error)
	DeactivateLink(ctx context.Context, ownerID, linkID uint64, clientIP string) error
	// DeleteLink 只能删除已停用的链接
	DeleteLink(ctx context.Context, ownerID, linkID uint64, clientIP string) error
	ListLinks(ctx context.Context, ownerID, galleryID uint64) ([]models.ShareLink, error)
	// ReleaseExpiredAliases 释放已过期链接占用的别名，链接本身保持过期状态而不是停用
	ReleaseExpiredAliases(ctx context.Context) (int64, error)
}

type linkService struct {
	repo        repositories.ShareLinkRepository
	tm          repositories.TransactionManager
	credentials credential.CredentialService
	sessions    session.SessionService
	audit       audit.AuditService
	hasher      *utils.TokenHasher
	cfg         config.LinksConfig
	now         func() time.Time
}

var _ LinkService = (*linkService)(nil)

type Option func(*linkService)

func WithClock(now func() time.Time) Option {
	return func(s *linkService) { s.now = now }
}

func NewLinkService(
	repo repositories.ShareLinkRepository,
	tm repositories.TransactionManager,
	credentials credential.CredentialService,
	sessions session.SessionService,
	auditService audit.AuditService,
	hasher *utils.TokenHasher,
	cfg *config.Config,
	opts ...Option,
) LinkService {
	s := &linkService{
		repo:        repo,
		tm:          tm,
		credentials: credentials,
		sessions:    sessions,
		audit:       auditService,
		hasher:      hasher,
		cfg:         cfg.Links,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeAlias 别名统一为小写
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

func (s *linkService) validate(in *CreateLinkInput) (ips allowlist.IPList, domains allowlist.DomainList, err error) {
	if !in.Type.Valid() {
		return ips, domains, fmt.Errorf("未知的链接类型 %q: %w", in.Type, xerr.ErrValidation)
	}

	maxDays := s.cfg.MaxExpiryDays
	if in.Type == models.LinkTypeTemporary {
		maxDays = s.cfg.TemporaryMaxDays
	}
	if in.ExpiresInDays == 0 {
		in.ExpiresInDays = min(defaultExpiryDays, maxDays)
	}
	if in.ExpiresInDays < 1 || in.ExpiresInDays > maxDays {
		return ips, domains, fmt.Errorf("有效期必须在 1 到 %d 天之间: %w", maxDays, xerr.ErrValidation)
	}

	if in.MaxUses == nil && in.Type == models.LinkTypePreview {
		n := s.cfg.PreviewDefaultMaxUses
		in.MaxUses = &n
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return ips, domains, fmt.Errorf("最大使用次数必须大于 0: %w", xerr.ErrValidation)
	}

	in.Alias = NormalizeAlias(in.Alias)
	if in.Alias != "" && !aliasPattern.MatchString(in.Alias) {
		return ips, domains, fmt.Errorf("别名只能包含小写字母、数字和连字符，长度 3 到 64: %w", xerr.ErrValidation)
	}
	if len([]rune(in.Description)) > maxDescriptionLen {
		return ips, domains, fmt.Errorf("描述不能超过 %d 个字符: %w", maxDescriptionLen, xerr.ErrValidation)
	}

	ips, err = allowlist.ParseIPList(in.IPRestrictions)
	if err != nil {
		return ips, domains, fmt.Errorf("%w: %w", xerr.ErrValidation, err)
	}
	domains, err = allowlist.ParseDomainList(in.EmailDomains)
	if err != nil {
		return ips, domains, fmt.Errorf("%w: %w", xerr.ErrValidation, err)
	}
	return ips, domains, nil
}

func (s *linkService) CreateLink(ctx context.Context, ownerID uint64, in CreateLinkInput) (*CreatedLink, error) {
	ips, domains, err := s.validate(&in)
	if err != nil {
		return nil, err
	}
	if _, err := s.credentials.GetOwnedGallery(ctx, ownerID, in.GalleryID); err != nil {
		return nil, err
	}

	now := s.now()
	link := &models.ShareLink{
		GalleryID:      in.GalleryID,
		Type:           in.Type,
		Description:    in.Description,
		ExpiresAt:      now.AddDate(0, 0, in.ExpiresInDays),
		MaxUses:        in.MaxUses,
		EmailDomains:   domains.Strings(),
		IPRestrictions: ips.Strings(),
		IsActive:       true,
		CreatedBy:      ownerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var rawToken string
	if in.Alias != "" {
		taken, err := s.repo.ActiveAliasExists(ctx, in.Alias)
		if err != nil {
			return nil, xerr.Wrap(xerr.ErrInternalStore, err)
		}
		if taken {
			return nil, xerr.ErrAliasTaken
		}
		alias := in.Alias
		link.Alias = &alias
		link.ActiveAlias = &alias
	} else {
		rawToken, err = utils.GenerateToken()
		if err != nil {
			return nil, err
		}
		hash := s.hasher.Hash(rawToken)
		link.TokenHash = &hash
	}

	if err := s.repo.Create(ctx, link); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && link.Alias != nil {
			return nil, xerr.ErrAliasTaken
		}
		logger.Error("CreateLink: 保存分享链接失败", zap.Uint64("galleryID", in.GalleryID), zap.Error(err))
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventLinkCreated,
		Severity:  models.SeverityLow,
		IP:        in.ClientIP,
		GalleryID: &link.GalleryID,
		Details: map[string]any{
			"link_id":  link.ID,
			"type":     string(link.Type),
			"aliased":  link.Alias != nil,
			"max_uses": link.MaxUses,
		},
	})
	logger.Info("CreateLink: 分享链接创建成功",
		zap.Uint64("linkID", link.ID), zap.Uint64("galleryID", link.GalleryID), zap.String("type", string(link.Type)))

	return &CreatedLink{Link: link, RawToken: rawToken, URL: s.publicURL(link, rawToken)}, nil
}

func (s *linkService) publicURL(link *models.ShareLink, rawToken string) string {
	if s.cfg.PublicBaseURL == "" {
		return ""
	}
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	if link.Alias != nil {
		return base + "/s/" + *link.Alias
	}
	return base + "/s/" + rawToken
}

func (s *linkService) lookup(ctx context.Context, in RedeemInput) (*models.ShareLink, error) {
	alias := NormalizeAlias(in.Alias)
	if alias != "" {
		link, err := s.repo.FindByAlias(ctx, alias)
		if err != nil {
			return nil, xerr.Wrap(xerr.ErrInternalStore, err)
		}
		if link != nil || in.Token == "" {
			return link, nil
		}
	}
	return s.findByToken(ctx, in.Token)
}

func (s *linkService) findByToken(ctx context.Context, raw string) (*models.ShareLink, error) {
	if raw == "" {
		return nil, nil
	}
	link, err := s.repo.FindByTokenHash(ctx, s.hasher.Hash(raw))
	if err != nil {
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	return link, nil
}

// checkConstraints 依次检查 有效 → 过期 → 次数 → IP → 邮箱域名，遇到第一个失败即返回
func checkConstraints(link *models.ShareLink, in RedeemInput, now time.Time) error {
	if !link.IsActive {
		return xerr.Deny(xerr.ErrForbidden, "link_deactivated")
	}
	if !now.Before(link.ExpiresAt) {
		return xerr.Deny(xerr.ErrExpired, "link_expired")
	}
	if link.RemainingUses() == 0 {
		return xerr.Deny(xerr.ErrExhausted, "link_exhausted")
	}
	if len(link.IPRestrictions) > 0 {
		ips, err := allowlist.ParseIPList(link.IPRestrictions)
		if err != nil || !ips.Contains(in.ClientIP) {
			return xerr.Deny(xerr.ErrForbidden, "ip_not_allowed")
		}
	}
	if len(link.EmailDomains) > 0 {
		domains, err := allowlist.ParseDomainList(link.EmailDomains)
		if err != nil || !domains.Matches(in.Email) {
			return xerr.Deny(xerr.ErrForbidden, "email_domain_not_allowed")
		}
	}
	return nil
}

// checkPassword 非 passwordless 链接在画廊设置了密码时需要提供正确密码
func (s *linkService) checkPassword(ctx context.Context, link *models.ShareLink, in RedeemInput) error {
	if link.Type == models.LinkTypePasswordless {
		return nil
	}
	gallery, err := s.credentials.GetGallery(ctx, link.GalleryID)
	if err != nil {
		return err
	}
	if !gallery.HasPassword() {
		return nil
	}
	if in.Password == "" {
		return xerr.Deny(xerr.ErrAuthenticationFailure, "password_required")
	}
	result, err := s.credentials.VerifyPassword(ctx, link.GalleryID, in.Password, in.ClientIP)
	if err != nil {
		return err
	}
	if result == credential.VerifyInvalid {
		return xerr.Deny(xerr.ErrAuthenticationFailure, "wrong_password")
	}
	return nil
}

func (s *linkService) RedeemLink(ctx context.Context, in RedeemInput) (*Redemption, error) {
	if in.Alias == "" && in.Token == "" {
		return nil, fmt.Errorf("需要提供别名或 token: %w", xerr.ErrValidation)
	}
	in.ClientIP = utils.NormalizeIP(in.ClientIP)
	in.UserAgent = utils.TruncateUserAgent(in.UserAgent)

	link, err := s.lookup(ctx, in)
	if err != nil {
		logger.Error("RedeemLink: 查询分享链接失败，按拒绝处理", zap.Error(err))
		return nil, err
	}
	if link == nil {
		return nil, xerr.Deny(xerr.ErrNotFound, "link_not_found")
	}

	if err := checkConstraints(link, in, s.now()); err != nil {
		return nil, err
	}
	if err := s.checkPassword(ctx, link, in); err != nil {
		return nil, err
	}

	var issued *session.Issued
	now := s.now()
	err = s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		consumed, err := s.repo.ConsumeUse(tx, link.ID, now, in.ClientIP, in.UserAgent)
		if err != nil {
			return xerr.Wrap(xerr.ErrInternalStore, err)
		}
		if !consumed {
			return errConsumeMiss
		}
		issued, err = s.sessions.IssueInTx(tx, link.GalleryID, &link.ID, in.ClientIP, in.UserAgent)
		return err
	})
	if err != nil {
		if errors.Is(err, errConsumeMiss) {
			return nil, s.classifyMiss(ctx, link.ID, now)
		}
		if !errors.Is(err, xerr.ErrInternalStore) {
			err = xerr.Wrap(xerr.ErrInternalStore, err)
		}
		logger.Error("RedeemLink: 兑换事务失败，按拒绝处理", zap.Uint64("linkID", link.ID), zap.Error(err))
		return nil, err
	}

	remaining := -1
	if link.MaxUses != nil {
		remaining = max(*link.MaxUses-link.UsedCount-1, 0)
	}
	return &Redemption{Session: issued, LinkID: link.ID, LinkType: link.Type, RemainingUses: remaining}, nil
}

// classifyMiss 并发下条件更新未命中时重新读取链接判断原因
func (s *linkService) classifyMiss(ctx context.Context, linkID uint64, now time.Time) error {
	link, err := s.repo.FindByID(ctx, linkID)
	if err != nil {
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	switch {
	case link == nil:
		return xerr.Deny(xerr.ErrNotFound, "link_not_found")
	case !link.IsActive:
		return xerr.Deny(xerr.ErrForbidden, "link_deactivated")
	case !now.Before(link.ExpiresAt):
		return xerr.Deny(xerr.ErrExpired, "link_expired")
	default:
		return xerr.Deny(xerr.ErrExhausted, "link_exhausted")
	}
}

// ownedLink 读取链接并校验调用者是画廊所有者
func (s *linkService) ownedLink(ctx context.Context, ownerID, linkID uint64) (*models.ShareLink, error) {
	link, err := s.repo.FindByID(ctx, linkID)
	if err != nil {
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if link == nil {
		return nil, xerr.Deny(xerr.ErrNotFound, "link_not_found")
	}
	if _, err := s.credentials.GetOwnedGallery(ctx, ownerID, link.GalleryID); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *linkService) DeactivateLink(ctx context.Context, ownerID, linkID uint64, clientIP string) error {
	link, err := s.ownedLink(ctx, ownerID, linkID)
	if err != nil {
		return err
	}
	changed, err := s.repo.Deactivate(ctx, linkID, s.now())
	if err != nil {
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if !changed {
		return nil
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventLinkDeactivated,
		Severity:  models.SeverityLow,
		IP:        clientIP,
		GalleryID: &link.GalleryID,
		Details:   map[string]any{"link_id": linkID, "owner_id": ownerID},
	})
	logger.Info("DeactivateLink: 分享链接已停用", zap.Uint64("linkID", linkID))
	return nil
}

func (s *linkService) DeleteLink(ctx context.Context, ownerID, linkID uint64, clientIP string) error {
	link, err := s.ownedLink(ctx, ownerID, linkID)
	if err != nil {
		return err
	}
	if link.IsActive {
		return xerr.ErrLinkStillActive
	}
	deleted, err := s.repo.DeleteInactive(ctx, linkID)
	if err != nil {
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if !deleted {
		return xerr.Deny(xerr.ErrNotFound, "link_not_found")
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventLinkDeleted,
		Severity:  models.SeverityLow,
		IP:        clientIP,
		GalleryID: &link.GalleryID,
		Details:   map[string]any{"link_id": linkID, "owner_id": ownerID, "used_count": link.UsedCount},
	})
	return nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID, galleryID uint64) ([]models.ShareLink, error) {
	if _, err := s.credentials.GetOwnedGallery(ctx, ownerID, galleryID); err != nil {
		return nil, err
	}
	links, err := s.repo.ListByGallery(ctx, galleryID)
	if err != nil {
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	return links, nil
}

func (s *linkService) ReleaseExpiredAliases(ctx context.Context) (int64, error) {
	n, err := s.repo.ReleaseExpiredAliases(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("ReleaseExpiredAliases: 已释放过期链接的别名", zap.Int64("count", n))
	}
	return n, nil
}
