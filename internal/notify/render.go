package notify

import (
	"fmt"

	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/service"
)

var weekdayNames = [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Render 生成通知标题与正文，站内通知与邮件共用
func Render(msg service.NotifyMessage) (title, body string) {
	when := fmt.Sprintf("%s %s-%s", weekday(msg.Slot.DayOfWeek), msg.Slot.StartTime, msg.Slot.EndTime)

	switch msg.Kind {
	case model.NotificationKindConfirmed:
		title = fmt.Sprintf("报名成功：%s", msg.SlotName)
		body = fmt.Sprintf("您已成功报名「%s」（%s）。", msg.SlotName, when)
	case model.NotificationKindWaiting:
		title = fmt.Sprintf("已进入候补：%s", msg.SlotName)
		body = fmt.Sprintf("「%s」（%s）名额已满，您当前候补第 %d 位，有空位时将自动转正。",
			msg.SlotName, when, position(msg.Position))
	case model.NotificationKindPromoted:
		title = fmt.Sprintf("候补转正：%s", msg.SlotName)
		body = fmt.Sprintf("「%s」（%s）有空位，您已从候补转为正式报名。", msg.SlotName, when)
	case model.NotificationKindDemoted:
		title = fmt.Sprintf("名额调整：%s", msg.SlotName)
		body = fmt.Sprintf("「%s」（%s）容量缩减，您已被移入候补第 %d 位。",
			msg.SlotName, when, position(msg.Position))
	default:
		title = msg.SlotName
		body = fmt.Sprintf("「%s」（%s）报名状态有更新。", msg.SlotName, when)
	}

	if msg.UserName != "" {
		body = fmt.Sprintf("%s，您好：\n\n%s", msg.UserName, body)
	}
	return title, body
}

func weekday(d int) string {
	if d < 0 || d > 6 {
		return ""
	}
	return weekdayNames[d]
}

func position(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
