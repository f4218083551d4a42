package repository

import (
	"context"

	"gorm.io/gorm"

	"plan-nat/backend/internal/model"
)

// CategoryRepository 会员类别数据访问接口
type CategoryRepository interface {
	GetByCode(ctx context.Context, code string) (*model.Category, error)
	List(ctx context.Context) ([]model.Category, error)
}

type categoryRepo struct {
	db *gorm.DB
}

// NewCategoryRepo 创建 CategoryRepository 实例
func NewCategoryRepo(db *gorm.DB) CategoryRepository {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) GetByCode(ctx context.Context, code string) (*model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepo) List(ctx context.Context) ([]model.Category, error) {
	var list []model.Category
	err := r.db.WithContext(ctx).Order("code ASC").Find(&list).Error
	return list, err
}
