package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// FormatConfigRepository 序列号格式配置仓库
type FormatConfigRepository struct {
	db *gorm.DB
}

func NewFormatConfigRepository(db *gorm.DB) *FormatConfigRepository {
	return &FormatConfigRepository{db: db}
}

// SequenceClaim 一次领取的连续流水号
type SequenceClaim struct {
	First int64
	Step  int64
	Count int
}

// At 第i个流水号
func (c SequenceClaim) At(i int) int64 {
	return c.First + c.Step*int64(i)
}

// Create 创建格式配置
func (r *FormatConfigRepository) Create(ctx context.Context, cfg *entity.SerialFormatConfig) error {
	return translate(r.db.WithContext(ctx).Create(cfg).Error)
}

// Update 更新格式配置
func (r *FormatConfigRepository) Update(ctx context.Context, cfg *entity.SerialFormatConfig) error {
	return translate(r.db.WithContext(ctx).Save(cfg).Error)
}

// FindByID 根据ID查询格式配置
func (r *FormatConfigRepository) FindByID(ctx context.Context, id string) (*entity.SerialFormatConfig, error) {
	var cfg entity.SerialFormatConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error; err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// FindActiveByPart 查询物料级的启用配置（最新优先）
func (r *FormatConfigRepository) FindActiveByPart(ctx context.Context, partID string) (*entity.SerialFormatConfig, error) {
	var cfg entity.SerialFormatConfig
	err := r.db.WithContext(ctx).
		Where("part_id = ? AND is_active = ?", partID, true).
		Order("created_at DESC").
		First(&cfg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// FindActiveBySite 查询工厂级的启用配置（不绑定物料）
func (r *FormatConfigRepository) FindActiveBySite(ctx context.Context, siteID string) (*entity.SerialFormatConfig, error) {
	var cfg entity.SerialFormatConfig
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND part_id IS NULL AND is_active = ?", siteID, true).
		Order("created_at DESC").
		First(&cfg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// FindAll 查询格式配置列表
func (r *FormatConfigRepository) FindAll(ctx context.Context, filters map[string]string) ([]entity.SerialFormatConfig, error) {
	var items []entity.SerialFormatConfig
	query := r.db.WithContext(ctx).Model(&entity.SerialFormatConfig{})
	if partID := filters["part_id"]; partID != "" {
		query = query.Where("part_id = ?", partID)
	}
	if siteID := filters["site_id"]; siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}
	if active := filters["is_active"]; active != "" {
		query = query.Where("is_active = ?", active == "true")
	}
	err := query.Order("created_at DESC").Find(&items).Error
	return items, err
}

// ClaimSequence 原子领取n个流水号
// 单条UPDATE推进计数器，必须在调用方事务内执行，事务回滚则计数器一并回滚
func (r *FormatConfigRepository) ClaimSequence(ctx context.Context, id string, n int) (SequenceClaim, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.SerialFormatConfig{}).
		Where("id = ?", id).
		UpdateColumn("next_sequence", gorm.Expr("next_sequence + sequential_increment * ?", n))
	if res.Error != nil {
		return SequenceClaim{}, res.Error
	}
	if res.RowsAffected == 0 {
		return SequenceClaim{}, ErrNotFound
	}

	var row struct {
		NextSequence        int64
		SequentialIncrement int64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.SerialFormatConfig{}).
		Select("next_sequence, sequential_increment").
		Where("id = ?", id).
		Scan(&row).Error
	if err != nil {
		return SequenceClaim{}, err
	}
	return SequenceClaim{
		First: row.NextSequence - row.SequentialIncrement*int64(n),
		Step:  row.SequentialIncrement,
		Count: n,
	}, nil
}
