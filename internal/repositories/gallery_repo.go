package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"gorm.io/gorm"
)

type GalleryRepository interface {
	Create(ctx context.Context, gallery *models.Gallery) error
	// FindByID 不存在时返回 nil, nil
	FindByID(ctx context.Context, id uint64) (*models.Gallery, error)
	// UpdateAccess 同时更新密码哈希和公开标记
	UpdateAccess(ctx context.Context, id uint64, passwordHash *string, isPublic bool) error
}

type galleryRepository struct {
	db *gorm.DB
}

var _ GalleryRepository = (*galleryRepository)(nil)

func NewGalleryRepository(db *gorm.DB) GalleryRepository {
	return &galleryRepository{db: db}
}

func (r *galleryRepository) Create(ctx context.Context, gallery *models.Gallery) error {
	if err := r.db.WithContext(ctx).Create(gallery).Error; err != nil {
		return fmt.Errorf("创建画廊访问记录失败: %w", err)
	}
	return nil
}

func (r *galleryRepository) FindByID(ctx context.Context, id uint64) (*models.Gallery, error) {
	var gallery models.Gallery
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&gallery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询画廊失败: %w", err)
	}
	return &gallery, nil
}

func (r *galleryRepository) UpdateAccess(ctx context.Context, id uint64, passwordHash *string, isPublic bool) error {
	res := r.db.WithContext(ctx).Model(&models.Gallery{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash": passwordHash,
			"is_public":     isPublic,
		})
	if res.Error != nil {
		return fmt.Errorf("更新画廊访问策略失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
