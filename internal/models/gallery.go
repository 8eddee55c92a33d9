package models

import "time"

// Gallery 画廊访问策略。画廊的其他元数据由画廊管理应用维护，这里只保存访问控制需要的字段
type Gallery struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID      uint64    `gorm:"not null;index" json:"owner_id"`
	PasswordHash *string   `gorm:"type:varchar(255)" json:"-"` // bcrypt 哈希，永不输出
	IsPublic     bool      `gorm:"not null;default:false" json:"is_public"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Gallery) TableName() string {
	return "galleries"
}

// HasPassword 画廊是否设置了访问密码
func (g *Gallery) HasPassword() bool {
	return g.PasswordHash != nil && *g.PasswordHash != ""
}
