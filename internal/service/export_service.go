package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

const (
	sheetEnrolled = "已报名"
	sheetWaiting  = "候补"
)

// ExportService 导出业务接口
//
//   - 时段名单导出为 Excel (.xlsx)，已报名与候补分 Sheet
//   - 会员日历导出为 iCalendar (.ics)，每个已报名时段一个按周重复的事件
//   - 以 bytes.Buffer 返回，由 Handler 层设置响应头
type ExportService interface {
	ExportSlotRoster(ctx context.Context, slotID string) (*bytes.Buffer, string, error)
	ExportMemberCalendar(ctx context.Context, userID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例，timezone 为时段所在时区（IANA 名称）
func NewExportService(repo *repository.Repository, timezone string, logger *zap.Logger) ExportService {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("加载时区失败，使用 UTC", zap.String("timezone", timezone), zap.Error(err))
		loc = time.UTC
	}
	return &exportService{repo: repo, loc: loc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportSlotRoster — 时段名单 Excel
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportSlotRoster(ctx context.Context, slotID string) (*bytes.Buffer, string, error) {
	slot, err := s.repo.Slot.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrSlotNotFound
		}
		s.logger.Error("查询时段失败", zap.Error(err))
		return nil, "", err
	}

	list, err := s.repo.Enrollment.ListBySlot(ctx, slotID)
	if err != nil {
		s.logger.Error("查询时段名单失败", zap.Error(err))
		return nil, "", err
	}

	var enrolled, waiting []model.Enrollment
	for _, e := range list {
		if e.IsWaiting() {
			waiting = append(waiting, e)
		} else {
			enrolled = append(enrolled, e)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	title := fmt.Sprintf("%s %s %s-%s（容量 %d）", slot.Name, weekdayNames[slot.DayOfWeek],
		formatClock(slot.StartTime), formatClock(slot.EndTime), slot.Capacity)

	sheets := []struct {
		name    string
		first   string
		entries []model.Enrollment
	}{
		{sheetEnrolled, "序号", enrolled},
		{sheetWaiting, "候补位次", waiting},
	}
	for i, sh := range sheets {
		idx, err := f.NewSheet(sh.name)
		if err != nil {
			s.logger.Error("创建 Sheet 失败", zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}

		f.SetColWidth(sh.name, "A", "A", 10)
		f.SetColWidth(sh.name, "B", "B", 18)
		f.SetColWidth(sh.name, "C", "C", 30)
		f.SetColWidth(sh.name, "D", "D", 22)

		f.SetCellValue(sh.name, "A1", title)
		f.MergeCell(sh.name, "A1", "D1")
		f.SetCellStyle(sh.name, "A1", "A1", headerStyle)

		for col, h := range []string{sh.first, "姓名", "邮箱", "报名时间"} {
			f.SetCellValue(sh.name, cell(colName(col), 2), h)
		}

		for r, e := range sh.entries {
			row := r + 3
			first := r + 1
			if e.WaitPosition != nil {
				first = *e.WaitPosition
			}
			name, email := e.UserID, ""
			if e.User != nil {
				name, email = e.User.Name, e.User.Email
			}
			f.SetCellValue(sh.name, cell("A", row), first)
			f.SetCellValue(sh.name, cell("B", row), name)
			f.SetCellValue(sh.name, cell("C", row), email)
			f.SetCellValue(sh.name, cell("D", row), e.CreatedAt.In(s.loc).Format("2006-01-02 15:04"))
		}
	}
	f.DeleteSheet("Sheet1")

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, fmt.Sprintf("名单_%s.xlsx", slot.Name), nil
}

// ═══════════════════════════════════════════════════════════
// ExportMemberCalendar — 会员日历 ICS
// ═══════════════════════════════════════════════════════════
//
// 只包含已报名（非候补）的时段；DTSTART 为下一次上课时间，按周重复

func (s *exportService) ExportMemberCalendar(ctx context.Context, userID string) (*bytes.Buffer, string, error) {
	if _, err := s.repo.User.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, "", err
	}

	list, err := s.repo.Enrollment.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("查询我的报名失败", zap.Error(err))
		return nil, "", err
	}

	now := time.Now().In(s.loc)
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//plan-nat//enrollments//FR")
	cal.SetXWRCalName("我的报名时段")

	tzid := &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{s.loc.String()}}
	for _, e := range list {
		if e.IsWaiting() || e.Slot == nil {
			continue
		}
		start, end, err := nextOccurrence(e.Slot, now, s.loc)
		if err != nil {
			s.logger.Warn("时段时间格式无效，跳过", zap.String("slot_id", e.SlotID), zap.Error(err))
			continue
		}

		event := cal.AddEvent(fmt.Sprintf("%s@plan-nat", e.EnrollmentID))
		event.SetDtStampTime(now)
		event.SetSummary(e.Slot.Name)
		event.SetProperty(ics.ComponentPropertyDtStart, start.Format("20060102T150405"), tzid)
		event.SetProperty(ics.ComponentPropertyDtEnd, end.Format("20060102T150405"), tzid)
		event.AddProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;BYDAY="+icsWeekdays[e.Slot.DayOfWeek])
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, "plan-nat.ics", nil
}

// nextOccurrence 从 now 起下一次（含今天尚未开始的）上课时间
func nextOccurrence(slot *model.Slot, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	st, err := time.Parse("15:04", formatClock(slot.StartTime))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	et, err := time.Parse("15:04", formatClock(slot.EndTime))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	days := (slot.DayOfWeek - int(now.Weekday()) + 7) % 7
	day := now.AddDate(0, 0, days)
	start := time.Date(day.Year(), day.Month(), day.Day(), st.Hour(), st.Minute(), 0, 0, loc)
	if !start.After(now) {
		start = start.AddDate(0, 0, 7)
	}
	end := time.Date(start.Year(), start.Month(), start.Day(), et.Hour(), et.Minute(), 0, 0, loc)
	return start, end, nil
}

var (
	weekdayNames = [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}
	icsWeekdays  = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}
)

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
