package model

// 通知类型
const (
	NotificationKindConfirmed = "confirmed" // 报名成功
	NotificationKindWaiting   = "waiting"   // 进入候补
	NotificationKindPromoted  = "promoted"  // 候补转正
	NotificationKindDemoted   = "demoted"   // 容量缩减被移入候补
)

// Notification 站内通知 — 对应 notifications
type Notification struct {
	NotificationID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         string  `gorm:"type:uuid;not null"                             json:"user_id"`
	SlotID         *string `gorm:"type:uuid"                                      json:"slot_id,omitempty"`
	Kind           string  `gorm:"type:varchar(20);not null"                      json:"kind"`
	Title          string  `gorm:"type:varchar(200);not null"                     json:"title"`
	Content        string  `gorm:"type:text;not null"                             json:"content"`
	WaitPosition   *int    `gorm:"type:int"                                       json:"wait_position,omitempty"`
	IsRead         bool    `gorm:"not null;default:false"                         json:"is_read"`
	BaseModel
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }
