package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plan-nat/backend/internal/model"
	pkgerrors "plan-nat/backend/pkg/errors"
)

// SlotFilter 时段列表过滤条件
type SlotFilter struct {
	DayOfWeek       *int
	IncludeInactive bool
}

// SlotRepository 时段数据访问接口
type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	GetByID(ctx context.Context, id string) (*model.Slot, error)
	// GetByIDForUpdate 使用 SELECT ... FOR UPDATE 行级锁查询时段，串行化同一时段的报名变更
	GetByIDForUpdate(ctx context.Context, id string) (*model.Slot, error)
	List(ctx context.Context, filter SlotFilter) ([]model.Slot, error)
	// Update 乐观锁更新基本信息（不含容量），版本冲突返回 ErrOptimisticLock
	Update(ctx context.Context, slot *model.Slot) error
	UpdateCapacity(ctx context.Context, id string, capacity int) error
	Delete(ctx context.Context, id string) error
}

type slotRepo struct {
	db *gorm.DB
}

// NewSlotRepo 创建 SlotRepository 实例
func NewSlotRepo(db *gorm.DB) SlotRepository {
	return &slotRepo{db: db}
}

func (r *slotRepo) Create(ctx context.Context, slot *model.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *slotRepo) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.WithContext(ctx).
		Where("slot_id = ?", id).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// 必须在已有事务的 *gorm.DB 上调用（通过 Repository.WithTx 注入事务连接）
func (r *slotRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("slot_id = ?", id).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepo) List(ctx context.Context, filter SlotFilter) ([]model.Slot, error) {
	var slots []model.Slot
	db := r.db.WithContext(ctx)

	if !filter.IncludeInactive {
		db = db.Where("is_active = ?", true)
	}
	if filter.DayOfWeek != nil {
		db = db.Where("day_of_week = ?", *filter.DayOfWeek)
	}

	err := db.Order("day_of_week ASC, start_time ASC").Find(&slots).Error
	return slots, err
}

func (r *slotRepo) Update(ctx context.Context, slot *model.Slot) error {
	oldVersion := slot.Version
	result := r.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("slot_id = ? AND version = ?", slot.SlotID, oldVersion).
		Updates(map[string]interface{}{
			"name":               slot.Name,
			"day_of_week":        slot.DayOfWeek,
			"start_time":         slot.StartTime,
			"end_time":           slot.EndTime,
			"capacity":           slot.Capacity,
			"allowed_categories": slot.AllowedCategories,
			"is_active":          slot.IsActive,
			"updated_by":         slot.UpdatedBy,
			"updated_at":         gorm.Expr("NOW()"),
			"version":            oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	slot.Version = oldVersion + 1
	return nil
}

func (r *slotRepo) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	return r.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("slot_id = ?", id).
		Updates(map[string]interface{}{
			"capacity":   capacity,
			"updated_at": gorm.Expr("NOW()"),
			"version":    gorm.Expr("version + 1"),
		}).Error
}

func (r *slotRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("slot_id = ?", id).
		Delete(&model.Slot{}).Error
}
