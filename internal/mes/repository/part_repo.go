package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// PartRepository 物料/工厂主数据仓库（只读为主）
type PartRepository struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) *PartRepository {
	return &PartRepository{db: db}
}

// FindByID 根据ID查询物料
func (r *PartRepository) FindByID(ctx context.Context, id string) (*entity.Part, error) {
	var part entity.Part
	err := r.db.WithContext(ctx).Preload("Site").Where("id = ?", id).First(&part).Error
	if err != nil {
		return nil, translate(err)
	}
	return &part, nil
}

// FindSiteByID 根据ID查询工厂
func (r *PartRepository) FindSiteByID(ctx context.Context, id string) (*entity.Site, error) {
	var site entity.Site
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error
	if err != nil {
		return nil, translate(err)
	}
	return &site, nil
}

// CreateSite 创建工厂
func (r *PartRepository) CreateSite(ctx context.Context, site *entity.Site) error {
	return translate(r.db.WithContext(ctx).Create(site).Error)
}

// Create 创建物料
func (r *PartRepository) Create(ctx context.Context, part *entity.Part) error {
	return translate(r.db.WithContext(ctx).Omit("Site").Create(part).Error)
}
