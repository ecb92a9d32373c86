package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// IdentityRepository 序列号仓库
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create 创建序列号
func (r *IdentityRepository) Create(ctx context.Context, identity *entity.SerialIdentity) error {
	return translate(r.db.WithContext(ctx).Create(identity).Error)
}

// CreateBatch 批量创建序列号
func (r *IdentityRepository) CreateBatch(ctx context.Context, identities []*entity.SerialIdentity) error {
	if len(identities) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(identities, 200).Error)
}

// FindByID 根据ID查询序列号
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*entity.SerialIdentity, error) {
	var identity entity.SerialIdentity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error; err != nil {
		return nil, translate(err)
	}
	return &identity, nil
}

// FindByIDs 批量查询序列号
func (r *IdentityRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.SerialIdentity, error) {
	var items []entity.SerialIdentity
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// FindBySerial 根据物料+序列号查询
func (r *IdentityRepository) FindBySerial(ctx context.Context, partID, serial string) (*entity.SerialIdentity, error) {
	var identity entity.SerialIdentity
	err := r.db.WithContext(ctx).
		Where("part_id = ? AND serial_number = ?", partID, serial).
		First(&identity).Error
	if err != nil {
		return nil, translate(err)
	}
	return &identity, nil
}

// ExistsSerial 检查物料下序列号是否已存在
func (r *IdentityRepository) ExistsSerial(ctx context.Context, partID, serial string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SerialIdentity{}).
		Where("part_id = ? AND serial_number = ?", partID, serial).
		Count(&count).Error
	return count > 0, err
}

// ExistingSerials 返回serials中物料下已存在的序列号
func (r *IdentityRepository) ExistingSerials(ctx context.Context, partID string, serials []string) ([]string, error) {
	var found []string
	if len(serials) == 0 {
		return found, nil
	}
	err := r.db.WithContext(ctx).
		Model(&entity.SerialIdentity{}).
		Where("part_id = ? AND serial_number IN ?", partID, serials).
		Pluck("serial_number", &found).Error
	return found, err
}

// ExistsSerialGlobal 检查序列号在所有物料中是否已存在
func (r *IdentityRepository) ExistsSerialGlobal(ctx context.Context, serial string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SerialIdentity{}).
		Where("serial_number = ?", serial).
		Count(&count).Error
	return count > 0, err
}

// LockSerial 按序列号取事务级咨询锁，事务结束自动释放
// 仅 postgres 生效；sqlite 的写事务本身串行
func (r *IdentityRepository) LockSerial(ctx context.Context, serial string) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", serial).Error
}

// FindBySerialNumber 跨物料按序列号查询
func (r *IdentityRepository) FindBySerialNumber(ctx context.Context, serial string) ([]entity.SerialIdentity, error) {
	var items []entity.SerialIdentity
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serial).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// FindByOrigin 按来源查询物料的序列号（最新优先）
func (r *IdentityRepository) FindByOrigin(ctx context.Context, partID, origin string, from, to *time.Time) ([]entity.SerialIdentity, error) {
	var items []entity.SerialIdentity
	query := r.db.WithContext(ctx).Where("part_id = ? AND origin_method = ?", partID, origin)
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}
	err := query.Order("created_at DESC, serial_number DESC").Find(&items).Error
	return items, err
}

// UpdateStatus 按期望的旧状态更新序列号状态，旧状态不符时返回 ErrNotFound
func (r *IdentityRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.SerialIdentity{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
