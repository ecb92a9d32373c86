package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// AuditService 审计事件服务
// 事件与状态迁移在同一事务内写入，一次迁移一条
type AuditService struct {
	repo *repository.AuditEventRepository
}

func NewAuditService(repo *repository.AuditEventRepository) *AuditService {
	return &AuditService{repo: repo}
}

// AuditEntry 待写入的审计事件
type AuditEntry struct {
	SubjectID   string
	SubjectType string
	EventType   string
	EventSource string
	Actor       string
	PartID      string
	FromStatus  string
	ToStatus    string
	Details     entity.JSONB
}

// Record 在 tx 内写入一条审计事件
func (s *AuditService) Record(ctx context.Context, tx *repository.Repositories, e AuditEntry) error {
	event := &entity.SerialAuditEvent{
		SubjectID:   e.SubjectID,
		SubjectType: e.SubjectType,
		EventType:   e.EventType,
		EventSource: e.EventSource,
		Actor:       e.Actor,
		PartID:      e.PartID,
		FromStatus:  e.FromStatus,
		ToStatus:    e.ToStatus,
		Details:     e.Details,
	}
	if err := tx.AuditEvent.Create(ctx, event); err != nil {
		return fmt.Errorf("record %s audit event: %w", e.EventType, err)
	}
	return nil
}

// committed 事务提交后记录指标
func (s *AuditService) committed(entries ...AuditEntry) {
	for _, e := range entries {
		metrics.Transition(e.SubjectType, e.EventType)
	}
}

// History 查询主体的审计历史
func (s *AuditService) History(ctx context.Context, subjectType, subjectID string) ([]entity.SerialAuditEvent, error) {
	events, err := s.repo.FindBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	return events, nil
}
