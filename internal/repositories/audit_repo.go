package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"gorm.io/gorm"
)

// AuditRepository 只追加的审计事件存储，没有更新方法
type AuditRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	CountByIPSince(ctx context.Context, ip string, eventTypes []models.EventType, since time.Time) (int64, error)
	ListByGallery(ctx context.Context, galleryID uint64, limit int) ([]models.AuditEvent, error)
	// ListBefore 按 ID 升序分批读取 cutoff 之前的事件，用于归档
	ListBefore(ctx context.Context, cutoff time.Time, afterID uint64, limit int) ([]models.AuditEvent, error)
	// DeleteBefore 删除 cutoff 之前且 ID 不大于 maxID 的事件，maxID 为 0 时不限制
	DeleteBefore(ctx context.Context, cutoff time.Time, maxID uint64) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

var _ AuditRepository = (*auditRepository)(nil)

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) CountByIPSince(ctx context.Context, ip string, eventTypes []models.EventType, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AuditEvent{}).
		Where("actor_ip = ? AND event_type IN ? AND created_at >= ?", ip, eventTypes, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计审计事件失败: %w", err)
	}
	return count, nil
}

func (r *auditRepository) ListByGallery(ctx context.Context, galleryID uint64, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("gallery_id = ?", galleryID).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询画廊审计事件失败: %w", err)
	}
	return events, nil
}

func (r *auditRepository) ListBefore(ctx context.Context, cutoff time.Time, afterID uint64, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("created_at < ? AND id > ?", cutoff, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("读取待归档审计事件失败: %w", err)
	}
	return events, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time, maxID uint64) (int64, error) {
	query := r.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if maxID > 0 {
		query = query.Where("id <= ?", maxID)
	}
	res := query.Delete(&models.AuditEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理审计事件失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
