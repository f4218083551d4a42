package dto

// ── 报名模块 DTO ──

// EnrollResponse 报名结果
type EnrollResponse struct {
	SlotID       string `json:"slot_id"`
	Status       string `json:"status"` // enrolled | waiting
	WaitPosition *int   `json:"wait_position,omitempty"`
}

// EnrollmentResponse 报名记录
type EnrollmentResponse struct {
	ID           string     `json:"id"`
	SlotID       string     `json:"slot_id"`
	Status       string     `json:"status"`
	WaitPosition *int       `json:"wait_position,omitempty"`
	CreatedAt    string     `json:"created_at"`
	User         *UserBrief `json:"user,omitempty"`
	Slot         *SlotBrief `json:"slot,omitempty"`
}

// SlotBrief 时段简要信息（嵌入“我的报名”）
type SlotBrief struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// RosterResponse 时段名单
type RosterResponse struct {
	Slot     SlotResponse         `json:"slot"`
	Enrolled []EnrollmentResponse `json:"enrolled"`
	Waiting  []EnrollmentResponse `json:"waiting"`
}
