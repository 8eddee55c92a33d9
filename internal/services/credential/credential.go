package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/passwordpolicy"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// VerifyResult 密码校验结果
type VerifyResult int

const (
	VerifyInvalid VerifyResult = iota
	VerifyValid
	VerifyNoPasswordSet
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyValid:
		return "valid"
	case VerifyNoPasswordSet:
		return "no_password_set"
	default:
		return "invalid"
	}
}

// CredentialService 画廊访问密码的存储与校验
type CredentialService interface {
	// Register 为新画廊创建访问记录，galleryID 为 0 时由数据库分配
	Register(ctx context.Context, ownerID, galleryID uint64) (*models.Gallery, error)
	GetGallery(ctx context.Context, galleryID uint64) (*models.Gallery, error)
	// GetOwnedGallery 获取画廊并校验所有者
	GetOwnedGallery(ctx context.Context, ownerID, galleryID uint64) (*models.Gallery, error)
	// SetPassword 校验强度后保存 bcrypt 哈希，画廊变为非公开；已签发的会话不受影响
	SetPassword(ctx context.Context, ownerID, galleryID uint64, raw, clientIP string) error
	// MakePublic 公开画廊并清除密码
	MakePublic(ctx context.Context, ownerID, galleryID uint64, clientIP string) error
	// VerifyPassword 每次调用都会写入 credential_probe 审计事件
	VerifyPassword(ctx context.Context, galleryID uint64, raw, clientIP string) (VerifyResult, error)
}

type credentialService struct {
	galleryRepo repositories.GalleryRepository
	audit       audit.AuditService
	policy      *passwordpolicy.Policy
	cost        int
	dummyHash   []byte
}

var _ CredentialService = (*credentialService)(nil)

func NewCredentialService(galleryRepo repositories.GalleryRepository, auditService audit.AuditService, cfg *config.Config) CredentialService {
	cost := cfg.Security.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// 画廊不存在时也做一次比较，响应时间不暴露画廊是否存在
	dummy, err := bcrypt.GenerateFromPassword([]byte("gallery-access-placeholder"), cost)
	if err != nil {
		logger.Fatal("生成占位哈希失败", zap.Error(err))
	}
	return &credentialService{
		galleryRepo: galleryRepo,
		audit:       auditService,
		policy:      passwordpolicy.New(cfg.Security.MinPasswordLength),
		cost:        cost,
		dummyHash:   dummy,
	}
}

func (s *credentialService) Register(ctx context.Context, ownerID, galleryID uint64) (*models.Gallery, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("所有者ID不能为空: %w", xerr.ErrValidation)
	}
	if galleryID != 0 {
		existing, err := s.galleryRepo.FindByID(ctx, galleryID)
		if err != nil {
			return nil, xerr.Wrap(xerr.ErrInternalStore, err)
		}
		if existing != nil {
			return nil, fmt.Errorf("画廊 %d 已注册: %w", galleryID, xerr.ErrValidation)
		}
	}
	gallery := &models.Gallery{ID: galleryID, OwnerID: ownerID}
	if err := s.galleryRepo.Create(ctx, gallery); err != nil {
		logger.Error("Register: 创建画廊访问记录失败", zap.Uint64("ownerID", ownerID), zap.Error(err))
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	logger.Info("Register: 画廊访问记录已创建", zap.Uint64("galleryID", gallery.ID), zap.Uint64("ownerID", ownerID))
	return gallery, nil
}

func (s *credentialService) GetGallery(ctx context.Context, galleryID uint64) (*models.Gallery, error) {
	gallery, err := s.galleryRepo.FindByID(ctx, galleryID)
	if err != nil {
		return nil, xerr.Wrap(xerr.ErrInternalStore, err)
	}
	if gallery == nil {
		return nil, xerr.Deny(xerr.ErrNotFound, "gallery_not_found")
	}
	return gallery, nil
}

func (s *credentialService) GetOwnedGallery(ctx context.Context, ownerID, galleryID uint64) (*models.Gallery, error) {
	gallery, err := s.GetGallery(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if gallery.OwnerID != ownerID {
		logger.Warn("非所有者尝试管理画廊", zap.Uint64("galleryID", galleryID), zap.Uint64("ownerID", ownerID))
		return nil, xerr.ErrPermissionDenied
	}
	return gallery, nil
}

func (s *credentialService) SetPassword(ctx context.Context, ownerID, galleryID uint64, raw, clientIP string) error {
	if _, err := s.GetOwnedGallery(ctx, ownerID, galleryID); err != nil {
		return err
	}
	if err := s.policy.Check(raw); err != nil {
		return fmt.Errorf("%w: %w", xerr.ErrWeakPassword, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), s.cost)
	if err != nil {
		logger.Error("SetPassword: 密码哈希失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
		return fmt.Errorf("密码处理失败: %w", err)
	}
	hash := string(hashed)
	if err := s.updateAccess(ctx, galleryID, &hash, false); err != nil {
		return err
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventPasswordChanged,
		Severity:  models.SeverityMedium,
		IP:        clientIP,
		GalleryID: &galleryID,
		Details:   map[string]any{"owner_id": ownerID},
	})
	logger.Info("SetPassword: 画廊密码已更新", zap.Uint64("galleryID", galleryID))
	return nil
}

func (s *credentialService) MakePublic(ctx context.Context, ownerID, galleryID uint64, clientIP string) error {
	if _, err := s.GetOwnedGallery(ctx, ownerID, galleryID); err != nil {
		return err
	}
	if err := s.updateAccess(ctx, galleryID, nil, true); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventPasswordChanged,
		Severity:  models.SeverityMedium,
		IP:        clientIP,
		GalleryID: &galleryID,
		Details:   map[string]any{"owner_id": ownerID, "public": true},
	})
	return nil
}

func (s *credentialService) updateAccess(ctx context.Context, galleryID uint64, hash *string, isPublic bool) error {
	if err := s.galleryRepo.UpdateAccess(ctx, galleryID, hash, isPublic); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return xerr.Deny(xerr.ErrNotFound, "gallery_not_found")
		}
		logger.Error("更新画廊访问策略失败", zap.Uint64("galleryID", galleryID), zap.Error(err))
		return xerr.Wrap(xerr.ErrInternalStore, err)
	}
	return nil
}

func (s *credentialService) VerifyPassword(ctx context.Context, galleryID uint64, raw, clientIP string) (VerifyResult, error) {
	gallery, err := s.galleryRepo.FindByID(ctx, galleryID)
	if err != nil {
		logger.Error("VerifyPassword: 查询画廊失败，按拒绝处理", zap.Uint64("galleryID", galleryID), zap.Error(err))
		return VerifyInvalid, xerr.Wrap(xerr.ErrInternalStore, err)
	}

	result := VerifyInvalid
	switch {
	case gallery == nil:
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(raw))
	case !gallery.HasPassword():
		result = VerifyNoPasswordSet
	case bcrypt.CompareHashAndPassword([]byte(*gallery.PasswordHash), []byte(raw)) == nil:
		result = VerifyValid
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      models.EventCredentialProbe,
		Severity:  models.SeverityLow,
		IP:        clientIP,
		GalleryID: &galleryID,
		Details:   map[string]any{"result": result.String()},
	})

	if gallery == nil {
		return VerifyInvalid, xerr.Deny(xerr.ErrNotFound, "gallery_not_found")
	}
	return result, nil
}
