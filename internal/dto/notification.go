package dto

// ── 通知模块 DTO ──

// NotificationListRequest 通知列表查询参数
type NotificationListRequest struct {
	PaginationRequest
	UnreadOnly bool `form:"unread_only"`
}

// NotificationResponse 站内通知
type NotificationResponse struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	SlotID       *string `json:"slot_id,omitempty"`
	WaitPosition *int    `json:"wait_position,omitempty"`
	IsRead       bool    `json:"is_read"`
	CreatedAt    string  `json:"created_at"`
}

// UnreadCountResponse 未读数量
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}
