package model

// 角色
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User 用户表 — 对应 users（本服务只读，由外部工具维护）
type User struct {
	UserID       string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name         string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Email        string  `gorm:"type:varchar(255);not null"                     json:"email"`
	PasswordHash string  `gorm:"type:varchar(255);not null"                     json:"-"`
	Role         string  `gorm:"type:varchar(20);not null;default:'member'"     json:"role"`
	Category     *string `gorm:"type:varchar(32)"                               json:"category,omitempty"` // 会员类别（执照类型）
	IsActive     bool    `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// CategoryCode 未设置类别时返回空字符串
func (u *User) CategoryCode() string {
	if u.Category == nil {
		return ""
	}
	return *u.Category
}
