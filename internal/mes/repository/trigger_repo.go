package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// TriggerRepository 赋号触发器仓库
type TriggerRepository struct {
	db *gorm.DB
}

func NewTriggerRepository(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// Create 创建触发器
func (r *TriggerRepository) Create(ctx context.Context, trigger *entity.SerialTrigger) error {
	return translate(r.db.WithContext(ctx).Omit("FormatConfig").Create(trigger).Error)
}

// FindByID 根据ID查询触发器
func (r *TriggerRepository) FindByID(ctx context.Context, id string) (*entity.SerialTrigger, error) {
	var trigger entity.SerialTrigger
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&trigger).Error; err != nil {
		return nil, translate(err)
	}
	return &trigger, nil
}

// FindByPartAndType 查询物料指定类型的全部触发器（含停用）
func (r *TriggerRepository) FindByPartAndType(ctx context.Context, partID, triggerType string) ([]entity.SerialTrigger, error) {
	var items []entity.SerialTrigger
	err := r.db.WithContext(ctx).
		Preload("FormatConfig").
		Where("part_id = ? AND trigger_type = ?", partID, triggerType).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// FindByPart 查询物料的触发器列表
func (r *TriggerRepository) FindByPart(ctx context.Context, partID string) ([]entity.SerialTrigger, error) {
	var items []entity.SerialTrigger
	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("trigger_type ASC, created_at ASC").
		Find(&items).Error
	return items, err
}

// SetActive 启用/停用触发器
func (r *TriggerRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&entity.SerialTrigger{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
