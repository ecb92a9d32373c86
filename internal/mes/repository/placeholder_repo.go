package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// PlaceholderRepository 占位符仓库
type PlaceholderRepository struct {
	db *gorm.DB
}

func NewPlaceholderRepository(db *gorm.DB) *PlaceholderRepository {
	return &PlaceholderRepository{db: db}
}

// PlaceholderStatusCount 按状态统计结果
type PlaceholderStatusCount struct {
	Status string `gorm:"column:status"`
	Count  int64  `gorm:"column:status_count"`
}

// Create 创建占位符
func (r *PlaceholderRepository) Create(ctx context.Context, ph *entity.SerialPlaceholder) error {
	return translate(r.db.WithContext(ctx).Omit("Identity").Create(ph).Error)
}

// CreateBatch 批量创建占位符
func (r *PlaceholderRepository) CreateBatch(ctx context.Context, items []*entity.SerialPlaceholder) error {
	if len(items) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Omit("Identity").CreateInBatches(items, 200).Error)
}

// FindByID 根据ID查询占位符
func (r *PlaceholderRepository) FindByID(ctx context.Context, id string) (*entity.SerialPlaceholder, error) {
	var ph entity.SerialPlaceholder
	err := r.db.WithContext(ctx).Preload("Identity").Where("id = ?", id).First(&ph).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ph, nil
}

// Resolve 将PENDING占位符置为终态，已不是PENDING时返回 ErrNotFound
func (r *PlaceholderRepository) Resolve(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&entity.SerialPlaceholder{}).
		Where("id = ? AND status = ?", id, entity.PlaceholderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindPending 查询物料的待赋号占位符
func (r *PlaceholderRepository) FindPending(ctx context.Context, partID string) ([]entity.SerialPlaceholder, error) {
	var items []entity.SerialPlaceholder
	err := r.db.WithContext(ctx).
		Where("part_id = ? AND status = ?", partID, entity.PlaceholderStatusPending).
		Order("created_at ASC, placeholder_code ASC").
		Find(&items).Error
	return items, err
}

// FindAll 按条件查询占位符
func (r *PlaceholderRepository) FindAll(ctx context.Context, filters map[string]string) ([]entity.SerialPlaceholder, error) {
	var items []entity.SerialPlaceholder
	query := r.db.WithContext(ctx).Model(&entity.SerialPlaceholder{})
	if partID := filters["part_id"]; partID != "" {
		query = query.Where("part_id = ?", partID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if workOrderID := filters["work_order_id"]; workOrderID != "" {
		query = query.Where("work_order_id = ?", workOrderID)
	}
	if lot := filters["lot_number"]; lot != "" {
		query = query.Where("lot_number = ?", lot)
	}
	err := query.Order("created_at DESC, placeholder_code DESC").Find(&items).Error
	return items, err
}

// FindSerialized 查询物料已赋号的占位符（按赋号时间过滤）
func (r *PlaceholderRepository) FindSerialized(ctx context.Context, partID string, from, to *time.Time) ([]entity.SerialPlaceholder, error) {
	var items []entity.SerialPlaceholder
	query := r.db.WithContext(ctx).
		Preload("Identity").
		Where("part_id = ? AND status = ?", partID, entity.PlaceholderStatusSerialized)
	if from != nil {
		query = query.Where("serialized_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("serialized_at <= ?", *to)
	}
	err := query.Order("serialized_at DESC").Find(&items).Error
	return items, err
}

// CountByStatus 按状态统计物料的占位符数量
func (r *PlaceholderRepository) CountByStatus(ctx context.Context, partID string) ([]PlaceholderStatusCount, error) {
	var rows []PlaceholderStatusCount
	err := r.db.WithContext(ctx).
		Model(&entity.SerialPlaceholder{}).
		Select("status, COUNT(*) AS status_count").
		Where("part_id = ?", partID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
