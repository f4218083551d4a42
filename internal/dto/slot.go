package dto

// ── 时段模块 DTO ──

// CreateSlotRequest 创建时段请求
type CreateSlotRequest struct {
	Name              string   `json:"name"               binding:"required,min=2,max=100"`
	DayOfWeek         *int     `json:"day_of_week"        binding:"required,min=0,max=6"` // 0=周日
	StartTime         string   `json:"start_time"         binding:"required"`             // "18:30"
	EndTime           string   `json:"end_time"           binding:"required"`             // "20:00"
	Capacity          int      `json:"capacity"           binding:"required,min=1"`
	AllowedCategories []string `json:"allowed_categories"`
	IsActive          *bool    `json:"is_active"`
}

// UpdateSlotRequest 更新时段请求
// Capacity 变化会触发候补转正或移入候补
type UpdateSlotRequest struct {
	Name              *string  `json:"name"        binding:"omitempty,min=2,max=100"`
	DayOfWeek         *int     `json:"day_of_week" binding:"omitempty,min=0,max=6"`
	StartTime         *string  `json:"start_time"`
	EndTime           *string  `json:"end_time"`
	Capacity          *int     `json:"capacity"`
	AllowedCategories []string `json:"allowed_categories"`
	IsActive          *bool    `json:"is_active"`
	Version           int      `json:"version"     binding:"required,min=1"`
}

// ResizeCapacityRequest 调整容量请求
type ResizeCapacityRequest struct {
	Capacity int `json:"capacity"`
}

// SlotListRequest 时段列表查询参数
type SlotListRequest struct {
	DayOfWeek       *int `form:"day_of_week"      binding:"omitempty,min=0,max=6"`
	IncludeInactive bool `form:"include_inactive"`
}

// DeleteSlotRequest 删除时段查询参数
type DeleteSlotRequest struct {
	Force bool `form:"force"`
}

// SlotResponse 时段信息响应
type SlotResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	DayOfWeek         int      `json:"day_of_week"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Capacity          int      `json:"capacity"`
	AllowedCategories []string `json:"allowed_categories"`
	IsActive          bool     `json:"is_active"`
	EnrolledCount     int64    `json:"enrolled_count"`
	WaitingCount      int64    `json:"waiting_count"`
	Version           int      `json:"version"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// ResizeCapacityResponse 调整容量结果
type ResizeCapacityResponse struct {
	Capacity int `json:"capacity"`
	Promoted int `json:"promoted"`
	Demoted  int `json:"demoted"`
}
