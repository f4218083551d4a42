package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"plan-nat/backend/config"
	"plan-nat/backend/internal/dto"
	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/repository"
	pkgerrors "plan-nat/backend/pkg/errors"
	"plan-nat/backend/pkg/keylock"
)

// ── 报名模块业务错误 ──

var (
	ErrDuplicateEnrollment = errors.New("已报名该时段")
	ErrQuotaExceeded       = errors.New("已达到每周报名次数上限")
	ErrCategoryNotAllowed  = errors.New("会员类别不允许报名该时段")
	ErrEnrollmentNotFound  = errors.New("报名记录不存在")
	ErrSlotNotFound        = errors.New("时段不存在")
	ErrSlotInactive        = errors.New("时段未开放报名")
	ErrInvalidCapacity     = errors.New("容量必须大于等于 1")
	ErrSlotHasEnrollments  = errors.New("时段仍有报名记录，需强制删除")
	ErrStorage             = errors.New("数据存储失败")
)

// EnrollmentService 报名/候补状态机
//
// 同一时段的所有写操作在进程内按时段加锁，并在事务内对时段行 SELECT ... FOR UPDATE，
// 多实例部署时由数据库行锁保证串行。通知在提交后发送，失败只记录日志。
type EnrollmentService interface {
	Enroll(ctx context.Context, userID, slotID string) (*dto.EnrollResponse, error)
	Withdraw(ctx context.Context, userID, slotID string) error
	ResizeCapacity(ctx context.Context, slotID string, newCapacity int) (*dto.ResizeCapacityResponse, error)
	// UpdateSlot 在同一把时段锁和同一事务内保存时段字段；容量变化时一并调整名单。
	// slot.Version 为调用方读到的版本，与锁定行不一致时返回 ErrSlotVersionStale
	UpdateSlot(ctx context.Context, slot *model.Slot, newCapacity int) (*dto.ResizeCapacityResponse, error)
	ForceDeleteSlot(ctx context.Context, slotID string) error
	// DeleteEmptySlot 非强制删除：存在任何报名记录时返回 ErrSlotHasEnrollments
	DeleteEmptySlot(ctx context.Context, slotID string) error

	ListBySlot(ctx context.Context, slotID string) (*dto.RosterResponse, error)
	ListMine(ctx context.Context, userID string) ([]dto.EnrollmentResponse, error)
}

type enrollmentService struct {
	repo     *repository.Repository
	notifier Notifier
	locks    *keylock.KeyLock
	policy   config.EnrollmentConfig
	logger   *zap.Logger
}

// NewEnrollmentService 创建 EnrollmentService 实例，notifier 为 nil 时不发送通知
func NewEnrollmentService(
	repo *repository.Repository,
	notifier Notifier,
	policy config.EnrollmentConfig,
	logger *zap.Logger,
) EnrollmentService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if policy.NotifyTimeout <= 0 {
		policy.NotifyTimeout = 3 * time.Second
	}
	return &enrollmentService{
		repo:     repo,
		notifier: notifier,
		locks:    keylock.New(),
		policy:   policy,
		logger:   logger,
	}
}

// ═══════════════════════════════════════════════════════════
// Enroll
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) Enroll(ctx context.Context, userID, slotID string) (*dto.EnrollResponse, error) {
	var (
		result dto.EnrollResponse
		msg    NotifyMessage
	)

	err := s.withSlot(ctx, slotID, func(txRepo *repository.Repository, slot *model.Slot) error {
		if !slot.IsActive {
			return ErrSlotInactive
		}

		user, err := txRepo.User.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return s.storageErr("查询用户失败", err)
		}

		_, err = txRepo.Enrollment.GetByUserAndSlot(ctx, userID, slotID)
		if err == nil {
			return ErrDuplicateEnrollment
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return s.storageErr("查询报名记录失败", err)
		}

		if !slot.AllowsCategory(user.CategoryCode()) {
			return ErrCategoryNotAllowed
		}

		enrolled, err := txRepo.Enrollment.CountBySlot(ctx, slotID, model.EnrollmentStatusEnrolled)
		if err != nil {
			return s.storageErr("统计已报名人数失败", err)
		}

		e := &model.Enrollment{
			UserID: userID,
			SlotID: slotID,
			Status: model.EnrollmentStatusEnrolled,
		}
		if enrolled >= int64(slot.Capacity) {
			maxPos, err := txRepo.Enrollment.MaxWaitPosition(ctx, slotID)
			if err != nil {
				return s.storageErr("查询候补位次失败", err)
			}
			pos := maxPos + 1
			e.Status = model.EnrollmentStatusWaiting
			e.WaitPosition = &pos
		}

		if err := s.checkQuota(ctx, txRepo, user, e.Status); err != nil {
			return err
		}

		if err := txRepo.Enrollment.Create(ctx, e); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrDuplicateEnrollment
			}
			return s.storageErr("创建报名记录失败", err)
		}

		result = dto.EnrollResponse{SlotID: slotID, Status: e.Status, WaitPosition: e.WaitPosition}
		kind := model.NotificationKindConfirmed
		if e.IsWaiting() {
			kind = model.NotificationKindWaiting
		}
		msg = newNotifyMessage(user, slot, kind, e.WaitPosition)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("报名成功",
		zap.String("user_id", userID),
		zap.String("slot_id", slotID),
		zap.String("status", result.Status),
	)
	s.dispatch(ctx, msg)
	return &result, nil
}

// checkQuota 每周报名次数上限
// 默认仅已报名记录计数，候补不受限；enrollment.waiting_counts_toward_quota 开启后两者都计数
func (s *enrollmentService) checkQuota(ctx context.Context, txRepo *repository.Repository, user *model.User, status string) error {
	if status == model.EnrollmentStatusWaiting && !s.policy.WaitingCountsTowardQuota {
		return nil
	}
	code := user.CategoryCode()
	if code == "" {
		return nil
	}

	category, err := txRepo.Category.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("会员类别不存在，跳过次数校验", zap.String("user_id", user.UserID), zap.String("category", code))
			return nil
		}
		return s.storageErr("查询会员类别失败", err)
	}
	if category.Unlimited() {
		return nil
	}

	statuses := []string{model.EnrollmentStatusEnrolled}
	if s.policy.WaitingCountsTowardQuota {
		statuses = append(statuses, model.EnrollmentStatusWaiting)
	}
	count, err := txRepo.Enrollment.CountByUser(ctx, user.UserID, statuses...)
	if err != nil {
		return s.storageErr("统计会员报名次数失败", err)
	}
	if count+1 > int64(category.WeeklyLimit) {
		return ErrQuotaExceeded
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// Withdraw
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) Withdraw(ctx context.Context, userID, slotID string) error {
	var msgs []NotifyMessage

	err := s.withSlot(ctx, slotID, func(txRepo *repository.Repository, slot *model.Slot) error {
		e, err := txRepo.Enrollment.GetByUserAndSlot(ctx, userID, slotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEnrollmentNotFound
			}
			return s.storageErr("查询报名记录失败", err)
		}

		if err := txRepo.Enrollment.Delete(ctx, e.EnrollmentID); err != nil {
			return s.storageErr("删除报名记录失败", err)
		}

		// 候补退出：后面的位次整体前移，保持 1..N 连续
		if e.IsWaiting() {
			if err := txRepo.Enrollment.ShiftWaitPositions(ctx, slotID, *e.WaitPosition); err != nil {
				return s.storageErr("调整候补位次失败", err)
			}
			return nil
		}

		waiting, err := txRepo.Enrollment.ListWaiting(ctx, slotID)
		if err != nil {
			return s.storageErr("查询候补名单失败", err)
		}
		if len(waiting) == 0 {
			return nil
		}

		next := waiting[0]
		if err := txRepo.Enrollment.UpdateStatus(ctx, next.EnrollmentID, model.EnrollmentStatusEnrolled, nil); err != nil {
			return s.storageErr("候补转正失败", err)
		}
		if err := txRepo.Enrollment.ShiftWaitPositions(ctx, slotID, *next.WaitPosition); err != nil {
			return s.storageErr("调整候补位次失败", err)
		}

		user, err := s.recipient(ctx, txRepo, &next)
		if err != nil {
			return err
		}
		msgs = append(msgs, newNotifyMessage(user, slot, model.NotificationKindPromoted, nil))
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("退出报名",
		zap.String("user_id", userID),
		zap.String("slot_id", slotID),
		zap.Int("promoted", len(msgs)),
	)
	s.dispatch(ctx, msgs...)
	return nil
}

// ═══════════════════════════════════════════════════════════
// ResizeCapacity
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) ResizeCapacity(ctx context.Context, slotID string, newCapacity int) (*dto.ResizeCapacityResponse, error) {
	if newCapacity < 1 {
		return nil, ErrInvalidCapacity
	}

	result := dto.ResizeCapacityResponse{Capacity: newCapacity}
	var msgs []NotifyMessage

	err := s.withSlot(ctx, slotID, func(txRepo *repository.Repository, slot *model.Slot) error {
		var err error
		if msgs, err = s.rebalance(ctx, txRepo, slot, newCapacity, &result); err != nil {
			return err
		}
		if err := txRepo.Slot.UpdateCapacity(ctx, slotID, newCapacity); err != nil {
			return s.storageErr("更新时段容量失败", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("时段容量已调整",
		zap.String("slot_id", slotID),
		zap.Int("capacity", newCapacity),
		zap.Int("promoted", result.Promoted),
		zap.Int("demoted", result.Demoted),
	)
	s.dispatch(ctx, msgs...)
	return &result, nil
}

func (s *enrollmentService) UpdateSlot(ctx context.Context, slot *model.Slot, newCapacity int) (*dto.ResizeCapacityResponse, error) {
	if newCapacity < 1 {
		return nil, ErrInvalidCapacity
	}

	result := dto.ResizeCapacityResponse{Capacity: newCapacity}
	var msgs []NotifyMessage

	err := s.withSlot(ctx, slot.SlotID, func(txRepo *repository.Repository, locked *model.Slot) error {
		if locked.Version != slot.Version {
			return ErrSlotVersionStale
		}
		if newCapacity != locked.Capacity {
			var err error
			if msgs, err = s.rebalance(ctx, txRepo, slot, newCapacity, &result); err != nil {
				return err
			}
		}

		slot.Capacity = newCapacity
		if err := txRepo.Slot.Update(ctx, slot); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrSlotVersionStale
			}
			return s.storageErr("更新时段失败", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("时段已更新",
		zap.String("slot_id", slot.SlotID),
		zap.Int("version", slot.Version),
		zap.Int("capacity", newCapacity),
		zap.Int("promoted", result.Promoted),
		zap.Int("demoted", result.Demoted),
	)
	s.dispatch(ctx, msgs...)
	return &result, nil
}

// rebalance 按新容量移入候补或转正，只改动报名记录，时段行由调用方写回
func (s *enrollmentService) rebalance(ctx context.Context, txRepo *repository.Repository, slot *model.Slot, newCapacity int, result *dto.ResizeCapacityResponse) ([]NotifyMessage, error) {
	enrolled, err := txRepo.Enrollment.CountBySlot(ctx, slot.SlotID, model.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, s.storageErr("统计已报名人数失败", err)
	}

	var msgs []NotifyMessage
	switch {
	case int64(newCapacity) < enrolled:
		msgs, err = s.demote(ctx, txRepo, slot, int(enrolled)-newCapacity)
		result.Demoted = len(msgs)
	case int64(newCapacity) > enrolled:
		msgs, err = s.promote(ctx, txRepo, slot, newCapacity-int(enrolled))
		result.Promoted = len(msgs)
	}
	return msgs, err
}

// demote 将最近报名的 n 条已报名记录移入候补
// 位次从当前最大位次 +1 开始按选出顺序分配，最新报名者排在被移入者的最前面
func (s *enrollmentService) demote(ctx context.Context, txRepo *repository.Repository, slot *model.Slot, n int) ([]NotifyMessage, error) {
	newest, err := txRepo.Enrollment.ListEnrolledNewest(ctx, slot.SlotID, n)
	if err != nil {
		return nil, s.storageErr("查询已报名名单失败", err)
	}
	maxPos, err := txRepo.Enrollment.MaxWaitPosition(ctx, slot.SlotID)
	if err != nil {
		return nil, s.storageErr("查询候补位次失败", err)
	}

	msgs := make([]NotifyMessage, 0, len(newest))
	for i := range newest {
		pos := maxPos + i + 1
		if err := txRepo.Enrollment.UpdateStatus(ctx, newest[i].EnrollmentID, model.EnrollmentStatusWaiting, &pos); err != nil {
			return nil, s.storageErr("移入候补失败", err)
		}
		user, err := s.recipient(ctx, txRepo, &newest[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, newNotifyMessage(user, slot, model.NotificationKindDemoted, &pos))
	}
	return msgs, nil
}

// promote 按位次升序转正最多 free 条候补，其余候补按创建时间重新编号为 1..M
func (s *enrollmentService) promote(ctx context.Context, txRepo *repository.Repository, slot *model.Slot, free int) ([]NotifyMessage, error) {
	waiting, err := txRepo.Enrollment.ListWaiting(ctx, slot.SlotID)
	if err != nil {
		return nil, s.storageErr("查询候补名单失败", err)
	}

	n := free
	if n > len(waiting) {
		n = len(waiting)
	}

	msgs := make([]NotifyMessage, 0, n)
	for i := 0; i < n; i++ {
		if err := txRepo.Enrollment.UpdateStatus(ctx, waiting[i].EnrollmentID, model.EnrollmentStatusEnrolled, nil); err != nil {
			return nil, s.storageErr("候补转正失败", err)
		}
		user, err := s.recipient(ctx, txRepo, &waiting[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, newNotifyMessage(user, slot, model.NotificationKindPromoted, nil))
	}

	rest := waiting[n:]
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].CreatedAt.Before(rest[j].CreatedAt)
	})
	for i := range rest {
		pos := i + 1
		if rest[i].WaitPosition != nil && *rest[i].WaitPosition == pos {
			continue
		}
		if err := txRepo.Enrollment.UpdateStatus(ctx, rest[i].EnrollmentID, model.EnrollmentStatusWaiting, &pos); err != nil {
			return nil, s.storageErr("重排候补位次失败", err)
		}
	}
	return msgs, nil
}

// ═══════════════════════════════════════════════════════════
// Delete
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) ForceDeleteSlot(ctx context.Context, slotID string) error {
	var removed int64
	err := s.withSlot(ctx, slotID, func(txRepo *repository.Repository, _ *model.Slot) error {
		var err error
		removed, err = txRepo.Enrollment.DeleteBySlot(ctx, slotID)
		if err != nil {
			return s.storageErr("删除时段报名记录失败", err)
		}
		if err := txRepo.Slot.Delete(ctx, slotID); err != nil {
			return s.storageErr("删除时段失败", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("时段已强制删除", zap.String("slot_id", slotID), zap.Int64("enrollments", removed))
	return nil
}

func (s *enrollmentService) DeleteEmptySlot(ctx context.Context, slotID string) error {
	err := s.withSlot(ctx, slotID, func(txRepo *repository.Repository, _ *model.Slot) error {
		count, err := txRepo.Enrollment.CountBySlot(ctx, slotID, "")
		if err != nil {
			return s.storageErr("统计报名记录失败", err)
		}
		if count > 0 {
			return ErrSlotHasEnrollments
		}
		if err := txRepo.Slot.Delete(ctx, slotID); err != nil {
			if pkgerrors.IsForeignKeyViolation(err) {
				return ErrSlotHasEnrollments
			}
			return s.storageErr("删除时段失败", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("时段已删除", zap.String("slot_id", slotID))
	return nil
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) ListBySlot(ctx context.Context, slotID string) (*dto.RosterResponse, error) {
	slot, err := s.repo.Slot.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, s.storageErr("查询时段失败", err)
	}

	list, err := s.repo.Enrollment.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, s.storageErr("查询时段名单失败", err)
	}

	roster := &dto.RosterResponse{
		Enrolled: make([]dto.EnrollmentResponse, 0),
		Waiting:  make([]dto.EnrollmentResponse, 0),
	}
	for i := range list {
		item := toEnrollmentResponse(&list[i])
		if list[i].IsWaiting() {
			roster.Waiting = append(roster.Waiting, item)
		} else {
			roster.Enrolled = append(roster.Enrolled, item)
		}
	}
	sort.SliceStable(roster.Waiting, func(i, j int) bool {
		return *roster.Waiting[i].WaitPosition < *roster.Waiting[j].WaitPosition
	})
	roster.Slot = toSlotResponse(slot, int64(len(roster.Enrolled)), int64(len(roster.Waiting)))
	return roster, nil
}

func (s *enrollmentService) ListMine(ctx context.Context, userID string) ([]dto.EnrollmentResponse, error) {
	list, err := s.repo.Enrollment.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.storageErr("查询我的报名失败", err)
	}
	result := make([]dto.EnrollmentResponse, 0, len(list))
	for i := range list {
		result = append(result, toEnrollmentResponse(&list[i]))
	}
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// 内部辅助
// ═══════════════════════════════════════════════════════════

// withSlot 在时段锁与事务内执行 fn，fn 拿到的时段已加行锁
func (s *enrollmentService) withSlot(ctx context.Context, slotID string, fn func(txRepo *repository.Repository, slot *model.Slot) error) error {
	unlock := s.locks.Lock(slotID)
	defer unlock()

	return s.runInTx(ctx, func(txRepo *repository.Repository) error {
		slot, err := txRepo.Slot.GetByIDForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSlotNotFound
			}
			return s.storageErr("锁定时段失败", err)
		}
		return fn(txRepo, slot)
	})
}

// runInTx 开启事务执行 fn，fn 返回错误或 panic 时整体回滚
func (s *enrollmentService) runInTx(ctx context.Context, fn func(txRepo *repository.Repository) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return s.storageErr("开启事务失败", err)
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	if err := fn(s.repo.WithTx(tx)); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			return s.storageErr("提交事务失败", err)
		}
	}
	return nil
}

// recipient 通知收件人，优先使用预加载的关联
func (s *enrollmentService) recipient(ctx context.Context, txRepo *repository.Repository, e *model.Enrollment) (*model.User, error) {
	if e.User != nil {
		return e.User, nil
	}
	user, err := txRepo.User.GetByID(ctx, e.UserID)
	if err != nil {
		return nil, s.storageErr("查询通知收件人失败", err)
	}
	return user, nil
}

// dispatch 提交后逐条发送通知，失败只记录 Warn
func (s *enrollmentService) dispatch(ctx context.Context, msgs ...NotifyMessage) {
	if len(msgs) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.NotifyTimeout)
	defer cancel()

	for _, msg := range msgs {
		if err := s.notifier.Notify(nctx, msg); err != nil {
			s.logger.Warn("发送报名通知失败",
				zap.String("user_id", msg.UserID),
				zap.String("slot_id", msg.SlotID),
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
		}
	}
}

func (s *enrollmentService) storageErr(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func toEnrollmentResponse(e *model.Enrollment) dto.EnrollmentResponse {
	resp := dto.EnrollmentResponse{
		ID:           e.EnrollmentID,
		SlotID:       e.SlotID,
		Status:       e.Status,
		WaitPosition: e.WaitPosition,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
	if e.User != nil {
		resp.User = &dto.UserBrief{ID: e.User.UserID, Name: e.User.Name, Email: e.User.Email}
	}
	if e.Slot != nil {
		resp.Slot = &dto.SlotBrief{
			ID:        e.Slot.SlotID,
			Name:      e.Slot.Name,
			DayOfWeek: e.Slot.DayOfWeek,
			StartTime: formatClock(e.Slot.StartTime),
			EndTime:   formatClock(e.Slot.EndTime),
		}
	}
	return resp
}
