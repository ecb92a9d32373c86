package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceholderService 延迟赋号服务
type PlaceholderService struct {
	repos    *repository.Repositories
	catalog  *PartCatalog
	audit    *AuditService
	maxBatch int
	logger   *zap.Logger
	now      func() time.Time
}

func NewPlaceholderService(
	repos *repository.Repositories,
	catalog *PartCatalog,
	audit *AuditService,
	maxBatch int,
	logger *zap.Logger,
) *PlaceholderService {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceholderService{
		repos:    repos,
		catalog:  catalog,
		audit:    audit,
		maxBatch: maxBatch,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePlaceholderReq 创建占位符请求
type CreatePlaceholderReq struct {
	PartID      string `json:"part_id" binding:"required"`
	WorkOrderID string `json:"work_order_id"`
	LotNumber   string `json:"lot_number"`
	// Count 仅批量创建使用
	Count int `json:"count"`
}

// CreatePlaceholder 创建一个占位符
func (s *PlaceholderService) CreatePlaceholder(ctx context.Context, req CreatePlaceholderReq, actor string) (*entity.SerialPlaceholder, error) {
	items, err := s.create(ctx, req, 1, actor)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// CreateBatchPlaceholders 批量创建占位符，全部成功或全部回滚
func (s *PlaceholderService) CreateBatchPlaceholders(ctx context.Context, req CreatePlaceholderReq, actor string) ([]*entity.SerialPlaceholder, error) {
	if req.Count < 1 || req.Count > s.maxBatch {
		return nil, validationf("batch count must be between 1 and %d, got %d", s.maxBatch, req.Count)
	}
	return s.create(ctx, req, req.Count, actor)
}

func (s *PlaceholderService) create(ctx context.Context, req CreatePlaceholderReq, count int, actor string) ([]*entity.SerialPlaceholder, error) {
	if _, err := s.catalog.GetPart(ctx, req.PartID); err != nil {
		return nil, err
	}

	now := s.now()
	codes := make(map[string]struct{}, count)
	items := make([]*entity.SerialPlaceholder, 0, count)
	entries := make([]AuditEntry, 0, count)
	for len(items) < count {
		code := placeholderCode(now)
		if _, dup := codes[code]; dup {
			continue
		}
		codes[code] = struct{}{}
		ph := &entity.SerialPlaceholder{
			ID:              uuid.New().String()[:32],
			PlaceholderCode: code,
			PartID:          req.PartID,
			WorkOrderID:     optional(req.WorkOrderID),
			LotNumber:       optional(req.LotNumber),
			Status:          entity.PlaceholderStatusPending,
			CreatedBy:       actor,
		}
		items = append(items, ph)
		entries = append(entries, AuditEntry{
			SubjectID:   ph.ID,
			SubjectType: entity.SubjectPlaceholder,
			EventType:   entity.AuditEventCreated,
			EventSource: entity.AuditSourceLateAssignment,
			Actor:       actor,
			PartID:      ph.PartID,
			ToStatus:    entity.PlaceholderStatusPending,
			Details:     entity.JSONB{"placeholder_code": code},
		})
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Placeholder.CreateBatch(ctx, items); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.audit.Record(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, writeErr(err, "create placeholders", "placeholder code already exists")
	}
	s.audit.committed(entries...)
	s.logger.Info("placeholders created", zap.String("part_id", req.PartID), zap.Int("count", len(items)))
	return items, nil
}

// AssignSerialReq 占位符赋号请求
type AssignSerialReq struct {
	SerialNumber  string `json:"serial_number" binding:"required"`
	OperationCode string `json:"operation_code" binding:"required"`
	Notes         string `json:"notes"`
}

// AssignSerialToPlaceholder 为PENDING占位符赋号，创建 LATE_ASSIGNMENT 序列号
// 序列号必须在全部序列号中唯一
func (s *PlaceholderService) AssignSerialToPlaceholder(ctx context.Context, id string, req AssignSerialReq, actor string) (*entity.SerialPlaceholder, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return nil, validationf("serial number is required")
	}
	if strings.TrimSpace(req.OperationCode) == "" {
		return nil, validationf("operation code is required")
	}

	ph, err := s.repos.Placeholder.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "placeholder", id)
	}
	if err := pendingPlaceholder(ph); err != nil {
		return nil, err
	}

	notUnique := fmt.Sprintf("serial %q is not unique", serial)
	now := s.now()
	identity := &entity.SerialIdentity{
		ID:           uuid.New().String()[:32],
		PartID:       ph.PartID,
		SerialNumber: serial,
		OriginMethod: entity.OriginLateAssignment,
		Status:       entity.IdentityStatusActive,
		WorkOrderID:  ph.WorkOrderID,
		LotNumber:    ph.LotNumber,
		CreatedBy:    actor,
	}
	entry := AuditEntry{
		SubjectID:   ph.ID,
		SubjectType: entity.SubjectPlaceholder,
		EventType:   entity.AuditEventSerialized,
		EventSource: entity.AuditSourceLateAssignment,
		Actor:       actor,
		PartID:      ph.PartID,
		FromStatus:  entity.PlaceholderStatusPending,
		ToStatus:    entity.PlaceholderStatusSerialized,
		Details: entity.JSONB{
			"identity_id":    identity.ID,
			"serial_number":  serial,
			"operation_code": req.OperationCode,
		},
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		// 跨物料唯一没有索引兜底，先按序列号加锁再检查
		if err := tx.Identity.LockSerial(ctx, serial); err != nil {
			return fmt.Errorf("lock serial: %w", err)
		}
		exists, err := tx.Identity.ExistsSerialGlobal(ctx, serial)
		if err != nil {
			return fmt.Errorf("check serial uniqueness: %w", err)
		}
		if exists {
			return &ConflictError{Message: notUnique}
		}
		if err := tx.Identity.Create(ctx, identity); err != nil {
			return err
		}
		err = tx.Placeholder.Resolve(ctx, ph.ID, map[string]interface{}{
			"status":                    entity.PlaceholderStatusSerialized,
			"identity_id":               identity.ID,
			"serial_number":             serial,
			"assignment_operation_code": req.OperationCode,
			"notes":                     req.Notes,
			"serialized_at":             now,
			"serialized_by":             actor,
		})
		if errors.Is(err, repository.ErrNotFound) {
			return conflictf("placeholder %s is no longer pending", ph.ID)
		}
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		if IsConflict(err) || repository.IsUniqueViolation(err) {
			metrics.Conflict("serial")
		}
		return nil, writeErr(err, "assign serial", notUnique)
	}

	s.audit.committed(entry)
	metrics.IdentitiesCreated(entity.OriginLateAssignment, 1)
	s.logger.Info("placeholder serialized",
		zap.String("placeholder", ph.PlaceholderCode),
		zap.String("serial", serial),
		zap.String("actor", actor),
	)
	return s.GetPlaceholder(ctx, ph.ID)
}

// MarkPlaceholderFailed PENDING → FAILED
func (s *PlaceholderService) MarkPlaceholderFailed(ctx context.Context, id, reason, actor string) (*entity.SerialPlaceholder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("failure reason is required")
	}
	ph, err := s.repos.Placeholder.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "placeholder", id)
	}
	if err := pendingPlaceholder(ph); err != nil {
		return nil, err
	}

	entry := AuditEntry{
		SubjectID:   ph.ID,
		SubjectType: entity.SubjectPlaceholder,
		EventType:   entity.AuditEventFailed,
		EventSource: entity.AuditSourceLateAssignment,
		Actor:       actor,
		PartID:      ph.PartID,
		FromStatus:  entity.PlaceholderStatusPending,
		ToStatus:    entity.PlaceholderStatusFailed,
		Details:     entity.JSONB{"reason": reason},
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		err := tx.Placeholder.Resolve(ctx, ph.ID, map[string]interface{}{
			"status":         entity.PlaceholderStatusFailed,
			"failure_reason": reason,
			"failed_at":      s.now(),
			"failed_by":      actor,
		})
		if errors.Is(err, repository.ErrNotFound) {
			return conflictf("placeholder %s is no longer pending", ph.ID)
		}
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, writeErr(err, "mark placeholder failed", "placeholder already resolved")
	}
	s.audit.committed(entry)
	return s.GetPlaceholder(ctx, ph.ID)
}

// GetPlaceholder 查询占位符
func (s *PlaceholderService) GetPlaceholder(ctx context.Context, id string) (*entity.SerialPlaceholder, error) {
	ph, err := s.repos.Placeholder.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "placeholder", id)
	}
	return ph, nil
}

// GetPendingPlaceholders 查询物料的待赋号占位符
func (s *PlaceholderService) GetPendingPlaceholders(ctx context.Context, partID string) ([]entity.SerialPlaceholder, error) {
	items, err := s.repos.Placeholder.FindPending(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("find pending placeholders: %w", err)
	}
	return items, nil
}

// PlaceholderFilter 占位符过滤条件
type PlaceholderFilter struct {
	PartID      string `form:"part_id"`
	Status      string `form:"status"`
	WorkOrderID string `form:"work_order_id"`
	LotNumber   string `form:"lot_number"`
}

// GetPlaceholders 按条件查询占位符
func (s *PlaceholderService) GetPlaceholders(ctx context.Context, filter PlaceholderFilter) ([]entity.SerialPlaceholder, error) {
	items, err := s.repos.Placeholder.FindAll(ctx, map[string]string{
		"part_id":       filter.PartID,
		"status":        filter.Status,
		"work_order_id": filter.WorkOrderID,
		"lot_number":    filter.LotNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("find placeholders: %w", err)
	}
	return items, nil
}

// GetSerializedFromPlaceholders 查询物料经占位符赋号的记录
func (s *PlaceholderService) GetSerializedFromPlaceholders(ctx context.Context, partID string, rng *DateRange) ([]entity.SerialPlaceholder, error) {
	var from, to *time.Time
	if rng != nil {
		from, to = utcPtr(rng.From), utcPtr(rng.To)
	}
	items, err := s.repos.Placeholder.FindSerialized(ctx, partID, from, to)
	if err != nil {
		return nil, fmt.Errorf("find serialized placeholders: %w", err)
	}
	return items, nil
}

// PlaceholderStatistics 占位符统计
type PlaceholderStatistics struct {
	PartID            string  `json:"part_id"`
	Total             int64   `json:"total"`
	Serialized        int64   `json:"serialized"`
	Failed            int64   `json:"failed"`
	Pending           int64   `json:"pending"`
	SerializedPercent float64 `json:"serialized_percent"`
	FailedPercent     float64 `json:"failed_percent"`
	PendingPercent    float64 `json:"pending_percent"`
}

// GetPlaceholderStatistics 统计物料的占位符；总数为0时百分比全为0
func (s *PlaceholderService) GetPlaceholderStatistics(ctx context.Context, partID string) (*PlaceholderStatistics, error) {
	rows, err := s.repos.Placeholder.CountByStatus(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("count placeholders: %w", err)
	}
	stats := &PlaceholderStatistics{PartID: partID}
	for _, row := range rows {
		switch row.Status {
		case entity.PlaceholderStatusSerialized:
			stats.Serialized = row.Count
		case entity.PlaceholderStatusFailed:
			stats.Failed = row.Count
		case entity.PlaceholderStatusPending:
			stats.Pending = row.Count
		}
		stats.Total += row.Count
	}
	if stats.Total == 0 {
		return stats, nil
	}
	total := float64(stats.Total)
	stats.SerializedPercent = float64(stats.Serialized) * 100 / total
	stats.FailedPercent = float64(stats.Failed) * 100 / total
	stats.PendingPercent = float64(stats.Pending) * 100 / total
	return stats, nil
}

func pendingPlaceholder(ph *entity.SerialPlaceholder) error {
	switch ph.Status {
	case entity.PlaceholderStatusPending:
		return nil
	case entity.PlaceholderStatusSerialized:
		metrics.Conflict("placeholder_transition")
		return conflictf("placeholder %s already has a serial (%s)", ph.PlaceholderCode, ph.SerialNumber)
	case entity.PlaceholderStatusFailed:
		metrics.Conflict("placeholder_transition")
		return conflictf("placeholder %s is marked as failed", ph.PlaceholderCode)
	}
	return conflictf("placeholder %s has unknown status %s", ph.PlaceholderCode, ph.Status)
}

// placeholderCode PH-<YYYYMMDD>-<8位大写十六进制>
func placeholderCode(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("PH-%s-%s", now.Format("20060102"), strings.ToUpper(hex[:8]))
}
