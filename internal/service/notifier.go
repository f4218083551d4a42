package service

import (
	"context"

	"plan-nat/backend/internal/model"
)

// Notifier 报名变更通知出口
// 仅在事务提交后调用，返回的错误只用于记录日志，不影响业务结果
type Notifier interface {
	Notify(ctx context.Context, msg NotifyMessage) error
}

// NotifyMessage 一条报名变更通知
type NotifyMessage struct {
	UserID    string
	UserEmail string
	UserName  string
	SlotID    string
	SlotName  string
	Kind      string // confirmed | waiting | promoted | demoted
	Position  *int   // 仅 waiting / demoted 时非空
	Slot      SlotDetails
}

// SlotDetails 通知正文中展示的时段信息
type SlotDetails struct {
	DayOfWeek int
	StartTime string
	EndTime   string
}

func newNotifyMessage(user *model.User, slot *model.Slot, kind string, position *int) NotifyMessage {
	msg := NotifyMessage{
		SlotID:   slot.SlotID,
		SlotName: slot.Name,
		Kind:     kind,
		Position: position,
		Slot: SlotDetails{
			DayOfWeek: slot.DayOfWeek,
			StartTime: formatClock(slot.StartTime),
			EndTime:   formatClock(slot.EndTime),
		},
	}
	if user != nil {
		msg.UserID = user.UserID
		msg.UserEmail = user.Email
		msg.UserName = user.Name
	}
	return msg
}

// nopNotifier 未配置通知出口时使用
type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, NotifyMessage) error { return nil }
