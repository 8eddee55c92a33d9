package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimitRepository 频率限制计数存储，所有判断都在存储端原子完成，多实例部署时依然成立
type RateLimitRepository interface {
	// Hit 记录一次尝试并返回是否允许
	Hit(ctx context.Context, identifier string, attemptType models.AttemptType, maxAttempts int, window time.Duration, now time.Time) (bool, error)
	// Block 写入封禁截止时间
	Block(ctx context.Context, identifier string, attemptType models.AttemptType, until time.Time, reason string, now time.Time) error
	// BlockedUntil 未封禁时返回 nil
	BlockedUntil(ctx context.Context, identifier string, attemptType models.AttemptType, now time.Time) (*time.Time, error)
	Reset(ctx context.Context, identifier string, attemptType models.AttemptType) error
	// DeleteStale 清理窗口早已结束且未封禁的记录
	DeleteStale(ctx context.Context, before time.Time, now time.Time) (int64, error)
}

type rateLimitDBRepository struct {
	db *gorm.DB
}

var _ RateLimitRepository = (*rateLimitDBRepository)(nil)

func NewRateLimitDBRepository(db *gorm.DB) RateLimitRepository {
	return &rateLimitDBRepository{db: db}
}

var identityColumns = []clause.Column{{Name: "identifier"}, {Name: "attempt_type"}}

func (r *rateLimitDBRepository) Hit(ctx context.Context, identifier string, attemptType models.AttemptType, maxAttempts int, window time.Duration, now time.Time) (bool, error) {
	db := r.db.WithContext(ctx)

	// 1. 不存在则插入空记录
	seed := models.RateLimitRecord{
		Identifier:  identifier,
		AttemptType: attemptType,
		WindowStart: now,
		UpdatedAt:   now,
	}
	if err := db.Clauses(clause.OnConflict{Columns: identityColumns, DoNothing: true}).Create(&seed).Error; err != nil {
		return false, fmt.Errorf("初始化频率限制记录失败: %w", err)
	}

	// 2. 窗口已结束则重置计数，不影响封禁
	err := db.Model(&models.RateLimitRecord{}).
		Where("identifier = ? AND attempt_type = ? AND window_start <= ?", identifier, attemptType, now.Add(-window)).
		Updates(map[string]any{"attempts": 0, "window_start": now, "updated_at": now}).Error
	if err != nil {
		return false, fmt.Errorf("重置频率限制窗口失败: %w", err)
	}

	// 3. 未达上限且未封禁时计数加一，受影响行数即为判定结果
	res := db.Model(&models.RateLimitRecord{}).
		Where("identifier = ? AND attempt_type = ? AND attempts < ?", identifier, attemptType, maxAttempts).
		Where("blocked_until IS NULL OR blocked_until <= ?", now).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + ?", 1), "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("更新频率限制计数失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *rateLimitDBRepository) Block(ctx context.Context, identifier string, attemptType models.AttemptType, until time.Time, reason string, now time.Time) error {
	record := models.RateLimitRecord{
		Identifier:   identifier,
		AttemptType:  attemptType,
		WindowStart:  now,
		BlockedUntil: &until,
		Reason:       reason,
		UpdatedAt:    now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   identityColumns,
		DoUpdates: clause.AssignmentColumns([]string{"blocked_until", "reason", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("写入封禁记录失败: %w", err)
	}
	return nil
}

func (r *rateLimitDBRepository) BlockedUntil(ctx context.Context, identifier string, attemptType models.AttemptType, now time.Time) (*time.Time, error) {
	var record models.RateLimitRecord
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND attempt_type = ? AND blocked_until > ?", identifier, attemptType, now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询封禁记录失败: %w", err)
	}
	return record.BlockedUntil, nil
}

func (r *rateLimitDBRepository) Reset(ctx context.Context, identifier string, attemptType models.AttemptType) error {
	return r.db.WithContext(ctx).
		Where("identifier = ? AND attempt_type = ?", identifier, attemptType).
		Delete(&models.RateLimitRecord{}).Error
}

func (r *rateLimitDBRepository) DeleteStale(ctx context.Context, before time.Time, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("window_start < ?", before).
		Where("blocked_until IS NULL OR blocked_until <= ?", now).
		Delete(&models.RateLimitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理频率限制记录失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
