package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.GallerySession) error
	// CreateInTx 在调用方事务中创建会话，用于链接兑换
	CreateInTx(tx *gorm.DB, session *models.GallerySession) error
	// FindByTokenHash 不存在时返回 nil, nil
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.GallerySession, error)
	Touch(ctx context.Context, id uint64, at time.Time) error
	// Rotate 以单条条件 UPDATE 替换 token 哈希，旧 token 不存在、已过期或画廊不匹配时返回 false
	Rotate(ctx context.Context, galleryID uint64, oldHash, newHash string, newExpiresAt, now time.Time) (bool, error)
	DeleteByTokenHash(ctx context.Context, galleryID uint64, tokenHash string) (bool, error)
	DeleteByGalleryID(ctx context.Context, galleryID uint64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

var _ SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.GallerySession) error {
	return r.CreateInTx(r.db.WithContext(ctx), session)
}

func (r *sessionRepository) CreateInTx(tx *gorm.DB, session *models.GallerySession) error {
	if err := tx.Create(session).Error; err != nil {
		return fmt.Errorf("创建会话失败: %w", err)
	}
	return nil
}

func (r *sessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.GallerySession, error) {
	var session models.GallerySession
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) Touch(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.GallerySession{}).
		Where("id = ?", id).
		Update("last_accessed_at", at).Error
}

func (r *sessionRepository) Rotate(ctx context.Context, galleryID uint64, oldHash, newHash string, newExpiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.GallerySession{}).
		Where("token_hash = ? AND gallery_id = ? AND expires_at > ?", oldHash, galleryID, now).
		Updates(map[string]any{
			"token_hash":       newHash,
			"expires_at":       newExpiresAt,
			"last_accessed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("轮换会话失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, galleryID uint64, tokenHash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("token_hash = ? AND gallery_id = ?", tokenHash, galleryID).
		Delete(&models.GallerySession{})
	if res.Error != nil {
		return false, fmt.Errorf("撤销会话失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepository) DeleteByGalleryID(ctx context.Context, galleryID uint64) (int64, error) {
	res := r.db.WithContext(ctx).Where("gallery_id = ?", galleryID).Delete(&models.GallerySession{})
	if res.Error != nil {
		return 0, fmt.Errorf("撤销画廊全部会话失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.GallerySession{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理过期会话失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
