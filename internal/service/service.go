package service

import (
	"go.uber.org/zap"

	"plan-nat/backend/config"
	"plan-nat/backend/internal/repository"
	"plan-nat/backend/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	Enrollment   EnrollmentService
	Slot         SlotService
	Notification NotificationService
	Export       ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	enrollment := NewEnrollmentService(repo, notifier, cfg.Enrollment, logger)
	return &Service{
		Auth:         NewAuthService(repo, jwtMgr, blacklist, logger),
		Enrollment:   enrollment,
		Slot:         NewSlotService(repo, enrollment, logger),
		Notification: NewNotificationService(repo, logger),
		Export:       NewExportService(repo, cfg.Database.Timezone, logger),
	}
}
