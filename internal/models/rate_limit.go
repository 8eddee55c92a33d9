package models

import "time"

// AttemptType 频率限制的尝试类型
type AttemptType string

const (
	AttemptPassword   AttemptType = "password"
	AttemptLinkRedeem AttemptType = "link_redeem"
	AttemptBruteForce AttemptType = "brute_force" // 封禁记录，identifier 为 IP
)

// RateLimitRecord 固定窗口计数，(identifier, attempt_type) 唯一
// BlockedUntil 在未来时，无论 attempts 为多少都拒绝
type RateLimitRecord struct {
	ID           uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Identifier   string      `gorm:"type:varchar(191);not null;uniqueIndex:idx_rate_limit_identity" json:"identifier"`
	AttemptType  AttemptType `gorm:"type:varchar(32);not null;uniqueIndex:idx_rate_limit_identity" json:"attempt_type"`
	WindowStart  time.Time   `gorm:"not null" json:"window_start"`
	Attempts     int         `gorm:"not null;default:0" json:"attempts"`
	BlockedUntil *time.Time  `gorm:"index" json:"blocked_until,omitempty"`
	Reason       string      `gorm:"type:varchar(64)" json:"reason,omitempty"`
	UpdatedAt    time.Time   `gorm:"not null" json:"updated_at"`
}

func (RateLimitRecord) TableName() string {
	return "rate_limits"
}
