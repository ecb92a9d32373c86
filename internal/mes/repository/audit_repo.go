package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEventRepository 审计事件仓库（只追加）
type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Create 写入审计事件
func (r *AuditEventRepository) Create(ctx context.Context, event *entity.SerialAuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindBySubject 查询主体的审计事件（时间顺序）
func (r *AuditEventRepository) FindBySubject(ctx context.Context, subjectType, subjectID string) ([]entity.SerialAuditEvent, error) {
	var items []entity.SerialAuditEvent
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// CountByEventType 统计主体某类事件的数量
func (r *AuditEventRepository) CountByEventType(ctx context.Context, subjectID, eventType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SerialAuditEvent{}).
		Where("subject_id = ? AND event_type = ?", subjectID, eventType).
		Count(&count).Error
	return count, err
}
