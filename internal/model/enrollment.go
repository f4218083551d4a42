package model

// 报名状态
const (
	EnrollmentStatusEnrolled = "enrolled"
	EnrollmentStatusWaiting  = "waiting"
)

// Enrollment 会员与时段的报名关系 — 对应 enrollments
// WaitPosition 仅在 status=waiting 时非空，同一时段内从 1 开始连续
type Enrollment struct {
	EnrollmentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"enrollment_id"`
	UserID       string `gorm:"type:uuid;not null"                             json:"user_id"`
	SlotID       string `gorm:"type:uuid;not null"                             json:"slot_id"`
	Status       string `gorm:"type:varchar(20);not null"                      json:"status"`
	WaitPosition *int   `gorm:"type:int"                                       json:"wait_position,omitempty"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Slot *Slot `gorm:"foreignKey:SlotID;references:SlotID" json:"slot,omitempty"`
}

// TableName 指定表名
func (Enrollment) TableName() string { return "enrollments" }

// IsWaiting 是否处于候补
func (e *Enrollment) IsWaiting() bool { return e.Status == EnrollmentStatusWaiting }
