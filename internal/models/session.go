package models

import "time"

// GallerySession 访客的画廊浏览会话，只保存 token 的 HMAC 哈希
type GallerySession struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenHash      string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	GalleryID      uint64     `gorm:"not null;index" json:"gallery_id"`
	ShareLinkID    *uint64    `gorm:"index" json:"share_link_id,omitempty"` // 通过分享链接兑换时记录来源链接
	ClientIP       string     `gorm:"type:varchar(45)" json:"client_ip"`
	UserAgent      string     `gorm:"type:varchar(512)" json:"user_agent"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

func (GallerySession) TableName() string {
	return "gallery_sessions"
}
