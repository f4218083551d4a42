package model

import "time"

// Category 会员类别（执照类型）— 对应 categories
// WeeklyLimit 为每周可报名的时段数上限，0 表示不限
type Category struct {
	Code        string    `gorm:"type:varchar(32);primaryKey"        json:"code"`
	Name        string    `gorm:"type:varchar(100);not null"         json:"name"`
	WeeklyLimit int       `gorm:"not null;default:0"                 json:"weekly_limit"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (Category) TableName() string { return "categories" }

// Unlimited 是否不限次数
func (c *Category) Unlimited() bool { return c.WeeklyLimit <= 0 }
