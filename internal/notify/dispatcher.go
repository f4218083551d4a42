// Package notify 报名变更通知：写入站内通知，并通过 Redis 队列异步投递邮件
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/repository"
	"plan-nat/backend/internal/service"
	"plan-nat/backend/pkg/queue"
)

// EmailQueue 邮件任务入队（*queue.Queue 实现）
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Dispatcher 实现 service.Notifier
type Dispatcher struct {
	repo   repository.NotificationRepository
	emails EmailQueue
	logger *zap.Logger
}

var _ service.Notifier = (*Dispatcher)(nil)

// NewDispatcher 创建通知分发器；emails 为 nil 时只写站内通知
func NewDispatcher(repo repository.NotificationRepository, emails EmailQueue, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, emails: emails, logger: logger}
}

// Notify 站内通知与邮件互不影响，两者的错误合并返回
func (d *Dispatcher) Notify(ctx context.Context, msg service.NotifyMessage) error {
	title, body := Render(msg)

	var errs []error

	n := &model.Notification{
		UserID:       msg.UserID,
		Kind:         msg.Kind,
		Title:        title,
		Content:      body,
		WaitPosition: msg.Position,
	}
	if msg.SlotID != "" {
		slotID := msg.SlotID
		n.SlotID = &slotID
	}
	if err := d.repo.Create(ctx, n); err != nil {
		errs = append(errs, fmt.Errorf("写入站内通知: %w", err))
	}

	if d.emails != nil && msg.UserEmail != "" {
		err := d.emails.EnqueueEmail(ctx, queue.EmailPayload{
			Kind:           msg.Kind,
			UserID:         msg.UserID,
			SlotID:         msg.SlotID,
			RecipientEmail: msg.UserEmail,
			RecipientName:  msg.UserName,
			Subject:        title,
			Body:           body,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("邮件入队: %w", err))
		}
	}

	if len(errs) == 0 {
		d.logger.Debug("通知已分发",
			zap.String("user_id", msg.UserID),
			zap.String("kind", msg.Kind),
		)
	}
	return errors.Join(errs...)
}
