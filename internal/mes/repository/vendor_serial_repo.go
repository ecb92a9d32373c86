package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// VendorSerialRepository 供应商序列号仓库
type VendorSerialRepository struct {
	db *gorm.DB
}

func NewVendorSerialRepository(db *gorm.DB) *VendorSerialRepository {
	return &VendorSerialRepository{db: db}
}

// Create 创建供应商序列号
func (r *VendorSerialRepository) Create(ctx context.Context, vs *entity.VendorSerial) error {
	return translate(r.db.WithContext(ctx).Omit("LinkedIdentity").Create(vs).Error)
}

// FindByID 根据ID查询供应商序列号
func (r *VendorSerialRepository) FindByID(ctx context.Context, id string) (*entity.VendorSerial, error) {
	var vs entity.VendorSerial
	err := r.db.WithContext(ctx).Preload("LinkedIdentity").Where("id = ?", id).First(&vs).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vs, nil
}

// Exists 检查 (供应商, 物料, 序列号) 是否已登记
func (r *VendorSerialRepository) Exists(ctx context.Context, vendorName, partID, serial string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.VendorSerial{}).
		Where("vendor_name = ? AND part_id = ? AND vendor_serial_number = ?", vendorName, partID, serial).
		Count(&count).Error
	return count > 0, err
}

// CountDuplicates 统计同一唯一范围内除自身外的记录数
func (r *VendorSerialRepository) CountDuplicates(ctx context.Context, vs *entity.VendorSerial) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.VendorSerial{}).
		Where("vendor_name = ? AND part_id = ? AND vendor_serial_number = ? AND id <> ?",
			vs.VendorName, vs.PartID, vs.VendorSerialNumber, vs.ID).
		Count(&count).Error
	return count, err
}

// Transition 从期望状态迁移，状态已变化时返回 ErrNotFound
func (r *VendorSerialRepository) Transition(ctx context.Context, id, fromStatus string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&entity.VendorSerial{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindAll 按条件查询供应商序列号
func (r *VendorSerialRepository) FindAll(ctx context.Context, filters map[string]string) ([]entity.VendorSerial, error) {
	var items []entity.VendorSerial
	query := r.db.WithContext(ctx).Model(&entity.VendorSerial{})
	if partID := filters["part_id"]; partID != "" {
		query = query.Where("part_id = ?", partID)
	}
	if vendor := filters["vendor_name"]; vendor != "" {
		query = query.Where("vendor_name = ?", vendor)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("received_date DESC, created_at DESC").Find(&items).Error
	return items, err
}

// Link 为已接收且未关联的记录关联序列号，条件不满足时返回 ErrNotFound
func (r *VendorSerialRepository) Link(ctx context.Context, id, identityID string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.VendorSerial{}).
		Where("id = ? AND status = ? AND linked_identity_id IS NULL", id, entity.VendorSerialStatusAccepted).
		Updates(map[string]interface{}{
			"linked_identity_id": identityID,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
