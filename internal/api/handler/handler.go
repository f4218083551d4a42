package handler

import "plan-nat/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth         *AuthHandler
	Slot         *SlotHandler
	Enrollment   *EnrollmentHandler
	Notification *NotificationHandler
	Export       *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(svc.Auth),
		Slot:         NewSlotHandler(svc.Slot, svc.Enrollment),
		Enrollment:   NewEnrollmentHandler(svc.Enrollment),
		Notification: NewNotificationHandler(svc.Notification),
		Export:       NewExportHandler(svc.Export),
	}
}
