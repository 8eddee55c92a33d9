package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventType 安全审计事件类型
type EventType string

const (
	EventCredentialProbe   EventType = "credential_probe"    // 每次密码校验
	EventFailedAuth        EventType = "failed_auth"         // 任何被拒绝的访问尝试
	EventSessionCreated    EventType = "session_created"
	EventSessionRotated    EventType = "session_rotated"
	EventSessionRevoked    EventType = "session_revoked"
	EventLinkCreated       EventType = "link_created"
	EventLinkRedeemed      EventType = "link_redeemed"
	EventLinkDeactivated   EventType = "link_deactivated"
	EventLinkDeleted       EventType = "link_deleted"
	EventPasswordChanged   EventType = "password_changed"
	EventIPBlocked         EventType = "ip_blocked"
	EventHashAccessAttempt EventType = "hash_access_attempt" // 疑似读取密码哈希
	EventSecurityReport    EventType = "security_report"     // 外部协作方上报的其他事件
)

// Severity 事件严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid 是否为已知的严重程度
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AuditEvent 只追加的安全审计记录，仅由定时任务按保留期清理
type AuditEvent struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType EventType         `gorm:"type:varchar(40);not null;index:idx_audit_ip_type_time,priority:2" json:"event_type"`
	Severity  Severity          `gorm:"type:varchar(10);not null" json:"severity"`
	ActorIP   string            `gorm:"type:varchar(45);index:idx_audit_ip_type_time,priority:1" json:"actor_ip"`
	UserAgent string            `gorm:"type:varchar(512)" json:"user_agent"`
	GalleryID *uint64           `gorm:"index" json:"gallery_id,omitempty"`
	Details   datatypes.JSONMap `json:"details"`
	CreatedAt time.Time         `gorm:"not null;index;index:idx_audit_ip_type_time,priority:3" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "security_audit_events"
}
