package models

import (
	"time"

	"gorm.io/datatypes"
)

// LinkType 分享链接类型
type LinkType string

const (
	LinkTypeStandard     LinkType = "standard"     // 画廊有密码时仍需密码
	LinkTypeTemporary    LinkType = "temporary"    // 短有效期
	LinkTypeClient       LinkType = "client"       // 通常配合邮箱域名白名单
	LinkTypePreview      LinkType = "preview"      // 少量使用次数
	LinkTypePasswordless LinkType = "passwordless" // 绕过画廊密码
)

// Valid 是否为已知的链接类型
func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeStandard, LinkTypeTemporary, LinkTypeClient, LinkTypePreview, LinkTypePasswordless:
		return true
	}
	return false
}

// ShareLink 对应 share_links 表
// ActiveAlias 在链接有效期间等于 Alias，停用或过期清理后置为 NULL，依靠唯一索引保证有效链接之间别名不重复
type ShareLink struct {
	ID             uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	GalleryID      uint64                      `gorm:"not null;index" json:"gallery_id"`
	Type           LinkType                    `gorm:"type:varchar(20);not null" json:"type"`
	Alias          *string                     `gorm:"type:varchar(64);index" json:"alias,omitempty"`
	ActiveAlias    *string                     `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	TokenHash      *string                     `gorm:"type:char(64);uniqueIndex" json:"-"`
	Description    string                      `gorm:"type:varchar(255)" json:"description"`
	ExpiresAt      time.Time                   `gorm:"not null;index" json:"expires_at"`
	MaxUses        *int                        `json:"max_uses,omitempty"` // NULL 表示不限次数
	UsedCount      int                         `gorm:"not null;default:0" json:"used_count"`
	EmailDomains   datatypes.JSONSlice[string] `json:"email_domains"`
	IPRestrictions datatypes.JSONSlice[string] `json:"ip_restrictions"`
	IsActive       bool                        `gorm:"not null;default:true;index" json:"is_active"`
	DeactivatedAt  *time.Time                  `json:"deactivated_at,omitempty"`
	CreatedBy      uint64                      `gorm:"not null;index" json:"created_by"`
	LastUsedAt     *time.Time                  `json:"last_used_at,omitempty"`
	LastUsedIP     string                      `gorm:"type:varchar(45)" json:"last_used_ip,omitempty"`
	LastUsedAgent  string                      `gorm:"type:varchar(512)" json:"last_used_agent,omitempty"`
	CreatedAt      time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"not null" json:"updated_at"`
}

func (ShareLink) TableName() string {
	return "share_links"
}

// RemainingUses 剩余可用次数，不限次数时返回 -1
func (l *ShareLink) RemainingUses() int {
	if l.MaxUses == nil {
		return -1
	}
	if rest := *l.MaxUses - l.UsedCount; rest > 0 {
		return rest
	}
	return 0
}
