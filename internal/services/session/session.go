package session

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 校验结果说明
const (
	DetailValid   = "valid"
	DetailInvalid = "invalid"
	DetailExpired = "expired"
)

// Issued 新签发的会话，RawToken 只在此处出现一次
type Issued struct {
	SessionID uint64    `json:"-"`
	GalleryID uint64    `json:"gallery_id"`
	RawToken  string    `json:"session_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validation 会话校验结果
type Validation struct {
	Valid     bool      `json:"valid"`
	Detail    string    `json:"detail"`
	GalleryID uint64    `json:"gallery_id"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// SessionService 画廊浏览会话的签发、校验、轮换和撤销
type SessionService interface {
	CreateSession(ctx context.Context, galleryID uint64, clientIP, userAgent string) (*Issued, error)
	// IssueInTx 在调用方事务中签发会话，用于分享链接兑换
	IssueInTx(tx *gorm.DB, galleryID uint64, linkID *uint64, clientIP, userAgent string) (*Issued, error)
	// ValidateSession 读取失败重试一次，仍失败则按无效处理并返回 ErrInternalStore
	ValidateSession(ctx context.Context, galleryID uint64, rawToken string) (*Validation, error)
	// RotateSession 旧 token 立即失效
	RotateSession(ctx context.Context, galleryID uint64, oldRawToken string) (*Issued, error)
	RevokeSession(ctx context.Context, galleryID uint64, rawToken string) error
	RevokeAllForGallery(ctx context.Context, galleryID uint64) (int64, error)
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

type sessionService struct {
	repo   repositories.SessionRepository
	hasher *utils.TokenHasher
	ttl    time.Duration
	now    func() time.Time
}

var _ SessionService = (*sessionService)(nil)

type Option func(*sessionService)

func WithClock(now func() time.Time) Option {
	return func(s *sessionService) { s.now = now }
}

func NewSessionService(repo repositories.SessionRepository, hasher *utils.TokenHasher, cfg *config.Config, opts ...Option) SessionService {
	s := &sessionService{
		repo:   repo,
		hasher: hasher,
		ttl:    cfg.Session.TTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sessionService) CreateSession(ctx context.Context, galleryID uint64, clientIP, userAgent string) (*Issued, error) {
	session, issued, err := s.newSession(galleryID, nil, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		logger.Error("CreateSession: 保存会话失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	issued.SessionID = session.ID
	return issued, nil
}

func (s *sessionService) IssueInTx(tx *gorm.DB, galleryID uint64, linkID *uint64, clientIP, userAgent string) (*Issued, error) {
	session, issued, err := s.newSession(galleryID, linkID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateInTx(tx, session); err != nil {
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	issued.SessionID = session.ID
	return issued, nil
}

func (s *sessionService) newSession(galleryID uint64, linkID *uint64, clientIP, userAgent string) (*models.GallerySession, *Issued, error) {
	raw, err := utils.GenerateToken()
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	session := &models.GallerySession{
		TokenHash:   s.hasher.Hash(raw),
		GalleryID:   galleryID,
		ShareLinkID: linkID,
		ClientIP:    utils.NormalizeIP(clientIP),
		UserAgent:   utils.TruncateUserAgent(userAgent),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	return session, &Issued{GalleryID: galleryID, RawToken: raw, ExpiresAt: session.ExpiresAt}, nil
}

func (s *sessionService) ValidateSession(ctx context.Context, galleryID uint64, rawToken string) (*Validation, error) {
	invalid := &Validation{Valid: false, Detail: DetailInvalid, GalleryID: galleryID}
	if rawToken == "" {
		return invalid, nil
	}
	hash := s.hasher.Hash(rawToken)

	session, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		logger.Warn("ValidateSession: 查询会话失败，重试一次", zap.Error(err))
		session, err = s.repo.FindByTokenHash(ctx, hash)
		if err != nil {
			logger.Error("ValidateSession: 查询会话失败，按无效处理", zap.Error(err))
			return invalid, xerr.Wrap(xerr.ErrInternalStore, err)
		}
	}
	if session == nil || session.GalleryID != galleryID {
		return invalid, nil
	}

	now := s.now()
	if !now.Before(session.ExpiresAt) {
		return &Validation{Valid: false, Detail: DetailExpired, GalleryID: galleryID, ExpiresAt: session.ExpiresAt}, nil
	}

	if err := s.repo.Touch(ctx, session.ID, now); err != nil {
		logger.Warn("ValidateSession: 更新最后访问时间失败", zap.Uint64("sessionID", session.ID), zap.Error(err))
	}
	return &Validation{Valid: true, Detail: DetailValid, GalleryID: galleryID, ExpiresAt: session.ExpiresAt}, nil
}

func (s *sessionService) RotateSession(ctx context.Context, galleryID uint64, oldRawToken string) (*Issued, error) {
	if oldRawToken == "" {
		return nil, xerr.Deny(xerr.ErrAuthenticationFailure, "session_invalid")
	}
	newRaw, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	oldHash := s.hasher.Hash(oldRawToken)

	rotated, err := s.repo.Rotate(ctx, galleryID, oldHash, s.hasher.Hash(newRaw), expiresAt, now)
	if err != nil {
		logger.Error("RotateSession: 轮换会话失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if !rotated {
		return nil, s.classifyRotateMiss(ctx, galleryID, oldHash, now)
	}
	return &Issued{GalleryID: galleryID, RawToken: newRaw, ExpiresAt: expiresAt}, nil
}

// classifyRotateMiss 区分过期和无效，只用于审计原因
func (s *sessionService) classifyRotateMiss(ctx context.Context, galleryID uint64, oldHash string, now time.Time) error {
	session, err := s.repo.FindByTokenHash(ctx, oldHash)
	if err == nil && session != nil && session.GalleryID == galleryID && !now.Before(session.ExpiresAt) {
		return xerr.Deny(xerr.ErrExpired, "session_expired")
	}
	return xerr.Deny(xerr.ErrAuthenticationFailure, "session_invalid")
}

func (s *sessionService) RevokeSession(ctx context.Context, galleryID uint64, rawToken string) error {
	if rawToken == "" {
		return xerr.Deny(xerr.ErrAuthenticationFailure, "session_invalid")
	}
	deleted, err := s.repo.DeleteByTokenHash(ctx, galleryID, s.hasher.Hash(rawToken))
	if err != nil {
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if !deleted {
		return xerr.Deny(xerr.ErrAuthenticationFailure, "session_invalid")
	}
	return nil
}

func (s *sessionService) RevokeAllForGallery(ctx context.Context, galleryID uint64) (int64, error) {
	n, err := s.repo.DeleteByGalleryID(ctx, galleryID)
	if err != nil {
		return 0, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	logger.Info("RevokeAllForGallery: 已撤销画廊全部会话", zap.Uint64("galleryID", galleryID), zap.Int64("count", n))
	return n, nil
}

func (s *sessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("清理过期会话失败: %w", err)
	}
	return n, nil
}
