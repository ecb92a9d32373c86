package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// IdentityService 序列号查询与状态管理
type IdentityService struct {
	repos  *repository.Repositories
	audit  *AuditService
	logger *zap.Logger
}

func NewIdentityService(repos *repository.Repositories, audit *AuditService, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{repos: repos, audit: audit, logger: logger}
}

// GetIdentity 查询序列号
func (s *IdentityService) GetIdentity(ctx context.Context, id string) (*entity.SerialIdentity, error) {
	identity, err := s.repos.Identity.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "identity", id)
	}
	return identity, nil
}

// FindBySerial 按序列号查询；partID 为空时跨物料查询
func (s *IdentityService) FindBySerial(ctx context.Context, partID, serial string) ([]entity.SerialIdentity, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, validationf("serial number is required")
	}
	if partID == "" {
		items, err := s.repos.Identity.FindBySerialNumber(ctx, serial)
		if err != nil {
			return nil, fmt.Errorf("find identities: %w", err)
		}
		return items, nil
	}
	identity, err := s.repos.Identity.FindBySerial(ctx, partID, serial)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []entity.SerialIdentity{}, nil
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return []entity.SerialIdentity{*identity}, nil
}

// UpdateStatusReq 序列号状态变更请求
type UpdateStatusReq struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateIdentityStatus 序列号状态流转，仅允许 ACTIVE → CONSUMED/SCRAPPED/SHIPPED
func (s *IdentityService) UpdateIdentityStatus(ctx context.Context, id string, req UpdateStatusReq, actor string) (*entity.SerialIdentity, error) {
	identity, err := s.repos.Identity.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "identity", id)
	}

	allowed, ok := entity.ValidIdentityTransitions[identity.Status]
	if !ok {
		return nil, conflictf("identity %s in status %s cannot change status", identity.ID, identity.Status)
	}
	valid := false
	for _, st := range allowed {
		if st == req.Status {
			valid = true
			break
		}
	}
	if !valid {
		return nil, conflictf("identity %s cannot change status from %s to %s", identity.ID, identity.Status, req.Status)
	}

	entry := AuditEntry{
		SubjectID:   identity.ID,
		SubjectType: entity.SubjectIdentity,
		EventType:   entity.AuditEventStatusChanged,
		EventSource: entity.AuditSourceLifecycle,
		Actor:       actor,
		PartID:      identity.PartID,
		FromStatus:  identity.Status,
		ToStatus:    req.Status,
		Details:     entity.JSONB{"reason": req.Reason},
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Identity.UpdateStatus(ctx, identity.ID, identity.Status, req.Status); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return conflictf("identity %s status changed concurrently", identity.ID)
			}
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, writeErr(err, "update identity status", "identity status conflict")
	}
	s.audit.committed(entry)
	s.logger.Info("identity status changed",
		zap.String("id", identity.ID),
		zap.String("from", entry.FromStatus),
		zap.String("to", entry.ToStatus),
	)
	return s.GetIdentity(ctx, identity.ID)
}

// GetAuditHistory 查询序列号的审计历史
func (s *IdentityService) GetAuditHistory(ctx context.Context, id string) ([]entity.SerialAuditEvent, error) {
	if _, err := s.GetIdentity(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, entity.SubjectIdentity, id)
}
