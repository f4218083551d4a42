package model

// Slot 每周循环的可报名时段 — 对应 slots
type Slot struct {
	SlotID            string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"slot_id"`
	Name              string      `gorm:"type:varchar(100);not null"                     json:"name"`
	DayOfWeek         int         `gorm:"type:smallint;not null"                         json:"day_of_week"` // 0=周日 … 6=周六
	StartTime         string      `gorm:"type:time;not null"                             json:"start_time"`
	EndTime           string      `gorm:"type:time;not null"                             json:"end_time"`
	Capacity          int         `gorm:"not null"                                       json:"capacity"`
	AllowedCategories StringArray `gorm:"type:text[];not null;default:'{}'"              json:"allowed_categories"` // 空表示所有类别
	IsActive          bool        `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel
}

// TableName 指定表名
func (Slot) TableName() string { return "slots" }

// AllowsCategory 白名单为空时允许所有类别
func (s *Slot) AllowsCategory(category string) bool {
	if len(s.AllowedCategories) == 0 {
		return true
	}
	return s.AllowedCategories.Contains(category)
}
