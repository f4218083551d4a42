package repository

import (
	"context"

	"gorm.io/gorm"

	"plan-nat/backend/internal/model"
)

// EnrollmentRepository 报名记录数据访问接口
// 所有写操作应在持有时段行锁的事务内调用
type EnrollmentRepository interface {
	Create(ctx context.Context, e *model.Enrollment) error
	GetByUserAndSlot(ctx context.Context, userID, slotID string) (*model.Enrollment, error)
	// ListBySlot 时段名单：已报名在前（按报名时间），候补按位次
	ListBySlot(ctx context.Context, slotID string) ([]model.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error)
	// ListEnrolledNewest 最近报名的 limit 条已报名记录（created_at 倒序）
	ListEnrolledNewest(ctx context.Context, slotID string, limit int) ([]model.Enrollment, error)
	// ListWaiting 候补记录，按位次升序，位次相同按创建时间
	ListWaiting(ctx context.Context, slotID string) ([]model.Enrollment, error)
	// CountBySlot status 为空时统计全部状态
	CountBySlot(ctx context.Context, slotID, status string) (int64, error)
	CountByUser(ctx context.Context, userID string, statuses ...string) (int64, error)
	MaxWaitPosition(ctx context.Context, slotID string) (int, error)
	// UpdateStatus 同时写入状态与候补位次（enrolled 时 position 必须为 nil）
	UpdateStatus(ctx context.Context, id, status string, position *int) error
	// ShiftWaitPositions 将位次大于 after 的候补记录前移一位
	ShiftWaitPositions(ctx context.Context, slotID string, after int) error
	Delete(ctx context.Context, id string) error
	DeleteBySlot(ctx context.Context, slotID string) (int64, error)
}

type enrollmentRepo struct {
	db *gorm.DB
}

// NewEnrollmentRepo 创建 EnrollmentRepository 实例
func NewEnrollmentRepo(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *enrollmentRepo) GetByUserAndSlot(ctx context.Context, userID, slotID string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND slot_id = ?", userID, slotID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepo) ListBySlot(ctx context.Context, slotID string) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("slot_id = ?", slotID).
		Order("status ASC, wait_position ASC NULLS FIRST, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *enrollmentRepo) ListEnrolledNewest(ctx context.Context, slotID string, limit int) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("slot_id = ? AND status = ?", slotID, model.EnrollmentStatusEnrolled).
		Order("created_at DESC, enrollment_id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *enrollmentRepo) ListWaiting(ctx context.Context, slotID string) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("slot_id = ? AND status = ?", slotID, model.EnrollmentStatusWaiting).
		Order("wait_position ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *enrollmentRepo) CountBySlot(ctx context.Context, slotID, status string) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).Model(&model.Enrollment{}).Where("slot_id = ?", slotID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Count(&count).Error
	return count, err
}

func (r *enrollmentRepo) CountByUser(ctx context.Context, userID string, statuses ...string) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).Model(&model.Enrollment{}).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	err := db.Count(&count).Error
	return count, err
}

func (r *enrollmentRepo) MaxWaitPosition(ctx context.Context, slotID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&model.Enrollment{}).
		Where("slot_id = ? AND status = ?", slotID, model.EnrollmentStatusWaiting).
		Select("COALESCE(MAX(wait_position), 0)").
		Scan(&max).Error
	return max, err
}

func (r *enrollmentRepo) UpdateStatus(ctx context.Context, id, status string, position *int) error {
	return r.db.WithContext(ctx).
		Model(&model.Enrollment{}).
		Where("enrollment_id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"wait_position": position,
			"updated_at":    gorm.Expr("NOW()"),
		}).Error
}

func (r *enrollmentRepo) ShiftWaitPositions(ctx context.Context, slotID string, after int) error {
	return r.db.WithContext(ctx).
		Model(&model.Enrollment{}).
		Where("slot_id = ? AND status = ? AND wait_position > ?", slotID, model.EnrollmentStatusWaiting, after).
		Updates(map[string]interface{}{
			"wait_position": gorm.Expr("wait_position - 1"),
			"updated_at":    gorm.Expr("NOW()"),
		}).Error
}

func (r *enrollmentRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("enrollment_id = ?", id).
		Delete(&model.Enrollment{}).Error
}

func (r *enrollmentRepo) DeleteBySlot(ctx context.Context, slotID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("slot_id = ?", slotID).
		Delete(&model.Enrollment{})
	return result.RowsAffected, result.Error
}
