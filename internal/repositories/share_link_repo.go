package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"gorm.io/gorm"
)

type ShareLinkRepository interface {
	Create(ctx context.Context, link *models.ShareLink) error
	// 以下 Find 方法不存在时返回 nil, nil
	FindByID(ctx context.Context, id uint64) (*models.ShareLink, error)
	// FindByAlias 优先返回有效链接，其次是最近停用的同名链接
	FindByAlias(ctx context.Context, alias string) (*models.ShareLink, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.ShareLink, error)
	ActiveAliasExists(ctx context.Context, alias string) (bool, error)
	ListByGallery(ctx context.Context, galleryID uint64) ([]models.ShareLink, error)

	// ConsumeUse 在事务中原子地消耗一次使用次数
	// 只有链接仍有效、未过期且未用尽时才会更新，返回是否成功
	ConsumeUse(tx *gorm.DB, id uint64, now time.Time, clientIP, userAgent string) (bool, error)
	// Deactivate 单向停用并释放别名，已停用时返回 false
	Deactivate(ctx context.Context, id uint64, now time.Time) (bool, error)
	// DeleteInactive 只删除已停用的链接
	DeleteInactive(ctx context.Context, id uint64) (bool, error)
	ReleaseExpiredAliases(ctx context.Context, now time.Time) (int64, error)
}

type shareLinkRepository struct {
	db *gorm.DB
}

var _ ShareLinkRepository = (*shareLinkRepository)(nil)

func NewShareLinkRepository(db *gorm.DB) ShareLinkRepository {
	return &shareLinkRepository{db: db}
}

func (r *shareLinkRepository) Create(ctx context.Context, link *models.ShareLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *shareLinkRepository) first(ctx context.Context, query *gorm.DB) (*models.ShareLink, error) {
	var link models.ShareLink
	if err := query.WithContext(ctx).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &link, nil
}

func (r *shareLinkRepository) FindByID(ctx context.Context, id uint64) (*models.ShareLink, error) {
	return r.first(ctx, r.db.Where("id = ?", id))
}

func (r *shareLinkRepository) FindByAlias(ctx context.Context, alias string) (*models.ShareLink, error) {
	return r.first(ctx, r.db.Where("alias = ?", alias).Order("active_alias IS NULL").Order("id DESC"))
}

func (r *shareLinkRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.ShareLink, error) {
	return r.first(ctx, r.db.Where("token_hash = ?", tokenHash))
}

func (r *shareLinkRepository) ActiveAliasExists(ctx context.Context, alias string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("active_alias = ?", alias).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("检查别名失败: %w", err)
	}
	return count > 0, nil
}

func (r *shareLinkRepository) ListByGallery(ctx context.Context, galleryID uint64) ([]models.ShareLink, error) {
	var links []models.ShareLink
	err := r.db.WithContext(ctx).Where("gallery_id = ?", galleryID).Order("created_at DESC").Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("查询分享链接列表失败: %w", err)
	}
	return links, nil
}

func (r *shareLinkRepository) ConsumeUse(tx *gorm.DB, id uint64, now time.Time, clientIP, userAgent string) (bool, error) {
	res := tx.Model(&models.ShareLink{}).
		Where("id = ? AND is_active = ? AND expires_at > ?", id, true, now).
		Where("max_uses IS NULL OR used_count < max_uses").
		Updates(map[string]any{
			"used_count":      gorm.Expr("used_count + ?", 1),
			"last_used_at":    now,
			"last_used_ip":    clientIP,
			"last_used_agent": userAgent,
		})
	if res.Error != nil {
		return false, fmt.Errorf("消耗分享链接次数失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *shareLinkRepository) Deactivate(ctx context.Context, id uint64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{
			"is_active":      false,
			"active_alias":   nil,
			"deactivated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("停用分享链接失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *shareLinkRepository) DeleteInactive(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, false).Delete(&models.ShareLink{})
	if res.Error != nil {
		return false, fmt.Errorf("删除分享链接失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseExpiredAliases 只清空 active_alias，is_active 和 deactivated_at 保持不变
func (r *shareLinkRepository) ReleaseExpiredAliases(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("active_alias IS NOT NULL AND expires_at <= ?", now).
		Update("active_alias", nil)
	if res.Error != nil {
		return 0, fmt.Errorf("释放过期链接别名失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
