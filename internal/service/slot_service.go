package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"plan-nat/backend/internal/dto"
	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/repository"
)

// ── 时段模块业务错误 ──

var (
	ErrInvalidSlotTime  = errors.New("时间格式应为 HH:MM，且结束时间晚于开始时间")
	ErrUnknownCategory  = errors.New("会员类别不存在")
	ErrSlotVersionStale = errors.New("时段已被他人修改，请刷新后重试")
)

// SlotService 时段业务接口
// 容量变更与删除委托给 EnrollmentService，保证名单与容量一致
type SlotService interface {
	Create(ctx context.Context, req *dto.CreateSlotRequest, callerID string) (*dto.SlotResponse, error)
	GetByID(ctx context.Context, id string) (*dto.SlotResponse, error)
	List(ctx context.Context, req *dto.SlotListRequest) ([]dto.SlotResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateSlotRequest, callerID string) (*dto.SlotResponse, error)
	Delete(ctx context.Context, id string, force bool) error
}

type slotService struct {
	repo       *repository.Repository
	enrollment EnrollmentService
	logger     *zap.Logger
}

// NewSlotService 创建 SlotService 实例
func NewSlotService(repo *repository.Repository, enrollment EnrollmentService, logger *zap.Logger) SlotService {
	return &slotService{repo: repo, enrollment: enrollment, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *slotService) Create(ctx context.Context, req *dto.CreateSlotRequest, callerID string) (*dto.SlotResponse, error) {
	if req.Capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	start, end, err := normalizeSlotTimes(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategories(ctx, req.AllowedCategories); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	slot := &model.Slot{
		Name:              req.Name,
		DayOfWeek:         *req.DayOfWeek,
		StartTime:         start,
		EndTime:           end,
		Capacity:          req.Capacity,
		AllowedCategories: model.StringArray(req.AllowedCategories),
		IsActive:          active,
	}
	slot.CreatedBy = &callerID
	slot.UpdatedBy = &callerID

	if err := s.repo.Slot.Create(ctx, slot); err != nil {
		s.logger.Error("创建时段失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("时段已创建", zap.String("slot_id", slot.SlotID), zap.String("name", slot.Name))
	resp := toSlotResponse(slot, 0, 0)
	return &resp, nil
}

// ────────────────────── Get / List ──────────────────────

func (s *slotService) GetByID(ctx context.Context, id string) (*dto.SlotResponse, error) {
	slot, err := s.repo.Slot.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		s.logger.Error("查询时段失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp, err := s.withCounts(ctx, slot)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *slotService) List(ctx context.Context, req *dto.SlotListRequest) ([]dto.SlotResponse, error) {
	slots, err := s.repo.Slot.List(ctx, repository.SlotFilter{
		DayOfWeek:       req.DayOfWeek,
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		s.logger.Error("查询时段列表失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.SlotResponse, 0, len(slots))
	for i := range slots {
		resp, err := s.withCounts(ctx, &slots[i])
		if err != nil {
			return nil, err
		}
		result = append(result, resp)
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *slotService) Update(ctx context.Context, id string, req *dto.UpdateSlotRequest, callerID string) (*dto.SlotResponse, error) {
	slot, err := s.repo.Slot.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		s.logger.Error("查询时段失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if slot.Version != req.Version {
		return nil, ErrSlotVersionStale
	}
	if req.Capacity != nil && *req.Capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	if req.Name != nil {
		slot.Name = *req.Name
	}
	if req.DayOfWeek != nil {
		slot.DayOfWeek = *req.DayOfWeek
	}
	start, end := slot.StartTime, slot.EndTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if slot.StartTime, slot.EndTime, err = normalizeSlotTimes(start, end); err != nil {
		return nil, err
	}
	if req.AllowedCategories != nil {
		if err := s.checkCategories(ctx, req.AllowedCategories); err != nil {
			return nil, err
		}
		slot.AllowedCategories = model.StringArray(req.AllowedCategories)
	}
	if req.IsActive != nil {
		slot.IsActive = *req.IsActive
	}
	slot.UpdatedBy = &callerID

	capacity := slot.Capacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	// 字段与容量在同一事务内提交，任一步失败都不留下部分更新
	if _, err := s.enrollment.UpdateSlot(ctx, slot, capacity); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}

// ────────────────────── Delete ──────────────────────

func (s *slotService) Delete(ctx context.Context, id string, force bool) error {
	if force {
		return s.enrollment.ForceDeleteSlot(ctx, id)
	}
	return s.enrollment.DeleteEmptySlot(ctx, id)
}

// ── 辅助函数 ──

func (s *slotService) withCounts(ctx context.Context, slot *model.Slot) (dto.SlotResponse, error) {
	enrolled, err := s.repo.Enrollment.CountBySlot(ctx, slot.SlotID, model.EnrollmentStatusEnrolled)
	if err != nil {
		s.logger.Error("统计已报名人数失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return dto.SlotResponse{}, err
	}
	waiting, err := s.repo.Enrollment.CountBySlot(ctx, slot.SlotID, model.EnrollmentStatusWaiting)
	if err != nil {
		s.logger.Error("统计候补人数失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return dto.SlotResponse{}, err
	}
	return toSlotResponse(slot, enrolled, waiting), nil
}

func (s *slotService) checkCategories(ctx context.Context, codes []string) error {
	for _, code := range codes {
		if _, err := s.repo.Category.GetByCode(ctx, code); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownCategory
			}
			s.logger.Error("查询会员类别失败", zap.String("code", code), zap.Error(err))
			return err
		}
	}
	return nil
}

// normalizeSlotTimes 校验 HH:MM 格式并要求 end > start
func normalizeSlotTimes(start, end string) (string, string, error) {
	st, err := time.Parse("15:04", formatClock(start))
	if err != nil {
		return "", "", ErrInvalidSlotTime
	}
	et, err := time.Parse("15:04", formatClock(end))
	if err != nil {
		return "", "", ErrInvalidSlotTime
	}
	if !et.After(st) {
		return "", "", ErrInvalidSlotTime
	}
	return st.Format("15:04"), et.Format("15:04"), nil
}

// formatClock PostgreSQL TIME 读出为 "18:30:00"，统一截为 "18:30"
func formatClock(v string) string {
	if len(v) >= 8 && strings.Count(v, ":") == 2 {
		return v[:5]
	}
	return v
}

func toSlotResponse(slot *model.Slot, enrolled, waiting int64) dto.SlotResponse {
	categories := []string(slot.AllowedCategories)
	if categories == nil {
		categories = []string{}
	}
	return dto.SlotResponse{
		ID:                slot.SlotID,
		Name:              slot.Name,
		DayOfWeek:         slot.DayOfWeek,
		StartTime:         formatClock(slot.StartTime),
		EndTime:           formatClock(slot.EndTime),
		Capacity:          slot.Capacity,
		AllowedCategories: categories,
		IsActive:          slot.IsActive,
		EnrolledCount:     enrolled,
		WaitingCount:      waiting,
		Version:           slot.Version,
		CreatedAt:         slot.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         slot.UpdatedAt.Format(time.RFC3339),
	}
}
