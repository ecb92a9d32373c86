package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxVendorSerialLength 供应商序列号最大长度
const MaxVendorSerialLength = 100

// MaxVendorNameLength 供应商名称最大长度，与列宽一致
const MaxVendorNameLength = 128

var vendorSerialFormat = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// VendorSerialService 供应商序列号服务
type VendorSerialService struct {
	repos       *repository.Repositories
	catalog     *PartCatalog
	audit       *AuditService
	propagation *PropagationService
	logger      *zap.Logger
}

func NewVendorSerialService(
	repos *repository.Repositories,
	catalog *PartCatalog,
	audit *AuditService,
	propagation *PropagationService,
	logger *zap.Logger,
) *VendorSerialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VendorSerialService{
		repos:       repos,
		catalog:     catalog,
		audit:       audit,
		propagation: propagation,
		logger:      logger,
	}
}

// ReceiveVendorSerialReq 接收供应商序列号请求
type ReceiveVendorSerialReq struct {
	VendorSerialNumber string     `json:"vendor_serial_number"`
	VendorName         string     `json:"vendor_name"`
	PartID             string     `json:"part_id"`
	ReceivedDate       *time.Time `json:"received_date"`
}

// ReceiveVendorSerial 登记供应商序列号（PENDING）
// 唯一范围为 (供应商, 物料, 序列号)，不同供应商的相同序列号允许共存
func (s *VendorSerialService) ReceiveVendorSerial(ctx context.Context, req ReceiveVendorSerialReq, actor string) (*entity.VendorSerial, error) {
	serial := strings.TrimSpace(req.VendorSerialNumber)
	vendor := strings.TrimSpace(req.VendorName)
	if serial == "" {
		return nil, validationf("vendor serial number is required")
	}
	if vendor == "" {
		return nil, validationf("vendor name is required")
	}
	if len(serial) > MaxVendorSerialLength {
		return nil, validationf("vendor serial number exceeds %d characters", MaxVendorSerialLength)
	}
	if len(vendor) > MaxVendorNameLength {
		return nil, validationf("vendor name exceeds %d characters", MaxVendorNameLength)
	}
	if _, err := s.catalog.GetPart(ctx, req.PartID); err != nil {
		return nil, err
	}

	conflictMsg := fmt.Sprintf("vendor serial %s from %s already exists for part %s", serial, vendor, req.PartID)
	exists, err := s.repos.VendorSerial.Exists(ctx, vendor, req.PartID, serial)
	if err != nil {
		return nil, fmt.Errorf("check vendor serial: %w", err)
	}
	if exists {
		metrics.Conflict("vendor_serial")
		return nil, &ConflictError{Message: conflictMsg}
	}

	received := time.Now().UTC()
	if req.ReceivedDate != nil && !req.ReceivedDate.IsZero() {
		received = req.ReceivedDate.UTC()
	}
	vs := &entity.VendorSerial{
		ID:                 uuid.New().String()[:32],
		VendorSerialNumber: serial,
		VendorName:         vendor,
		PartID:             req.PartID,
		ReceivedDate:       received,
		Status:             entity.VendorSerialStatusPending,
	}
	entry := AuditEntry{
		SubjectID:   vs.ID,
		SubjectType: entity.SubjectVendorSerial,
		EventType:   entity.AuditEventReceived,
		EventSource: entity.AuditSourceVendor,
		Actor:       actor,
		PartID:      vs.PartID,
		ToStatus:    entity.VendorSerialStatusPending,
		Details:     entity.JSONB{"vendor_name": vendor, "vendor_serial_number": serial},
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.VendorSerial.Create(ctx, vs); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			metrics.Conflict("vendor_serial")
		}
		return nil, writeErr(err, "create vendor serial", conflictMsg)
	}
	s.audit.committed(entry)
	s.logger.Info("vendor serial received",
		zap.String("id", vs.ID),
		zap.String("vendor", vendor),
		zap.String("part_id", vs.PartID),
	)
	return vs, nil
}

// VendorValidationResult 供应商序列号校验结果
type VendorValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	FormatValid bool     `json:"format_valid"`
	IsUnique    bool     `json:"is_unique"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
}

// ValidateVendorSerial 校验供应商序列号；已接收给出警告，已拒收视为错误
func (s *VendorSerialService) ValidateVendorSerial(ctx context.Context, id string) (*VendorValidationResult, error) {
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}

	res := &VendorValidationResult{Errors: []string{}, Warnings: []string{}}
	if msg := checkVendorFormat(vs.VendorSerialNumber); msg != "" {
		res.Errors = append(res.Errors, msg)
	} else {
		res.FormatValid = true
	}

	dups, err := s.repos.VendorSerial.CountDuplicates(ctx, vs)
	if err != nil {
		return nil, fmt.Errorf("count duplicates: %w", err)
	}
	res.IsUnique = dups == 0
	if !res.IsUnique {
		res.Errors = append(res.Errors, fmt.Sprintf("vendor serial %s is not unique for vendor %s and part %s",
			vs.VendorSerialNumber, vs.VendorName, vs.PartID))
	}

	switch vs.Status {
	case entity.VendorSerialStatusAccepted:
		res.Warnings = append(res.Warnings, "vendor serial is already accepted")
	case entity.VendorSerialStatusRejected:
		msg := "vendor serial was rejected"
		if vs.RejectionReason != "" {
			msg += ": " + vs.RejectionReason
		}
		res.Errors = append(res.Errors, msg)
	}

	clash, err := s.repos.Identity.ExistsSerial(ctx, vs.PartID, vs.VendorSerialNumber)
	if err != nil {
		return nil, fmt.Errorf("check identity serial: %w", err)
	}
	if clash && (vs.LinkedIdentityID == nil || vs.LinkedIdentity == nil || vs.LinkedIdentity.SerialNumber != vs.VendorSerialNumber) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("an identity with serial %s already exists for part %s",
			vs.VendorSerialNumber, vs.PartID))
	}

	res.IsValid = res.FormatValid && res.IsUnique && len(res.Errors) == 0
	return res, nil
}

// AcceptVendorSerial PENDING → ACCEPTED（终态）
// 关联的序列号必须存在且属于同一物料
func (s *VendorSerialService) AcceptVendorSerial(ctx context.Context, id, actor, linkedIdentityID string) (*entity.VendorSerial, error) {
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}
	if err := pendingVendorSerial(vs, "accepted"); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":      entity.VendorSerialStatusAccepted,
		"accepted_by": actor,
		"accepted_at": time.Now().UTC(),
	}
	if linkedIdentityID != "" {
		identity, err := s.repos.Identity.FindByID(ctx, linkedIdentityID)
		if err != nil {
			return nil, lookupErr(err, "identity", linkedIdentityID)
		}
		if identity.PartID != vs.PartID {
			return nil, validationf("linked identity %s belongs to part %s, expected part %s",
				identity.ID, identity.PartID, vs.PartID)
		}
		updates["linked_identity_id"] = identity.ID
	}

	entry := AuditEntry{
		SubjectID:   vs.ID,
		SubjectType: entity.SubjectVendorSerial,
		EventType:   entity.AuditEventAccepted,
		EventSource: entity.AuditSourceVendor,
		Actor:       actor,
		PartID:      vs.PartID,
		FromStatus:  entity.VendorSerialStatusPending,
		ToStatus:    entity.VendorSerialStatusAccepted,
		Details:     entity.JSONB{"linked_identity_id": linkedIdentityID},
	}
	if err := s.transition(ctx, vs.ID, updates, entry); err != nil {
		return nil, err
	}
	return s.GetVendorSerial(ctx, vs.ID)
}

// RejectVendorSerial PENDING → REJECTED（终态）
func (s *VendorSerialService) RejectVendorSerial(ctx context.Context, id, reason, actor string) (*entity.VendorSerial, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}
	if err := pendingVendorSerial(vs, "rejected"); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":           entity.VendorSerialStatusRejected,
		"rejection_reason": reason,
		"rejected_by":      actor,
		"rejected_at":      time.Now().UTC(),
	}
	entry := AuditEntry{
		SubjectID:   vs.ID,
		SubjectType: entity.SubjectVendorSerial,
		EventType:   entity.AuditEventRejected,
		EventSource: entity.AuditSourceVendor,
		Actor:       actor,
		PartID:      vs.PartID,
		FromStatus:  entity.VendorSerialStatusPending,
		ToStatus:    entity.VendorSerialStatusRejected,
		Details:     entity.JSONB{"reason": reason},
	}
	if err := s.transition(ctx, vs.ID, updates, entry); err != nil {
		return nil, err
	}
	return s.GetVendorSerial(ctx, vs.ID)
}

// PropagateVendorSerialReq 供应商序列号流转请求
type PropagateVendorSerialReq struct {
	OperationCode string `json:"operation_code"`
	Quantity      int    `json:"quantity"`
}

// PropagateVendorSerial 已接收且已关联的供应商序列号，从关联的序列号做直通流转
func (s *VendorSerialService) PropagateVendorSerial(ctx context.Context, id, operationCode string, quantity int, actor string) (*entity.PropagationEdge, error) {
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}
	if vs.Status != entity.VendorSerialStatusAccepted {
		return nil, conflictf("vendor serial %s must be accepted before propagation (status %s)", vs.ID, vs.Status)
	}
	if vs.LinkedIdentityID == nil || *vs.LinkedIdentityID == "" {
		return nil, conflictf("vendor serial %s must be accepted with a linked identity before propagation", vs.ID)
	}
	return s.propagation.PropagatePassThrough(ctx, PassThroughReq{
		SourceID:      *vs.LinkedIdentityID,
		OperationCode: operationCode,
		Quantity:      quantity,
	}, actor)
}

// RegisterVendorIdentity 为已接收、未关联的供应商序列号创建 VENDOR_ASSIGNED 序列号并关联
func (s *VendorSerialService) RegisterVendorIdentity(ctx context.Context, id, actor string) (*entity.SerialIdentity, error) {
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}
	if vs.Status != entity.VendorSerialStatusAccepted {
		return nil, conflictf("vendor serial %s must be accepted before registering an identity (status %s)", vs.ID, vs.Status)
	}
	if vs.LinkedIdentityID != nil {
		return nil, conflictf("vendor serial %s is already linked to identity %s", vs.ID, *vs.LinkedIdentityID)
	}

	conflictMsg := fmt.Sprintf("serial %q already exists for part %s", vs.VendorSerialNumber, vs.PartID)
	identity := &entity.SerialIdentity{
		ID:           uuid.New().String()[:32],
		PartID:       vs.PartID,
		SerialNumber: vs.VendorSerialNumber,
		OriginMethod: entity.OriginVendorAssigned,
		Status:       entity.IdentityStatusActive,
		CreatedBy:    actor,
	}
	entry := AuditEntry{
		SubjectID:   identity.ID,
		SubjectType: entity.SubjectIdentity,
		EventType:   entity.AuditEventCreated,
		EventSource: entity.AuditSourceVendor,
		Actor:       actor,
		PartID:      identity.PartID,
		ToStatus:    entity.IdentityStatusActive,
		Details: entity.JSONB{
			"serial_number":    identity.SerialNumber,
			"vendor_serial_id": vs.ID,
			"vendor_name":      vs.VendorName,
		},
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		exists, err := tx.Identity.ExistsSerial(ctx, vs.PartID, vs.VendorSerialNumber)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Message: conflictMsg}
		}
		if err := tx.Identity.Create(ctx, identity); err != nil {
			return err
		}
		if err := tx.VendorSerial.Link(ctx, vs.ID, identity.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return conflictf("vendor serial %s was linked concurrently", vs.ID)
			}
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		if IsConflict(err) || repository.IsUniqueViolation(err) {
			metrics.Conflict("serial")
		}
		return nil, writeErr(err, "register vendor identity", conflictMsg)
	}
	s.audit.committed(entry)
	metrics.IdentitiesCreated(entity.OriginVendorAssigned, 1)
	return identity, nil
}

// GetVendorSerial 查询供应商序列号
func (s *VendorSerialService) GetVendorSerial(ctx context.Context, id string) (*entity.VendorSerial, error) {
	vs, err := s.repos.VendorSerial.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "vendor serial", id)
	}
	return vs, nil
}

// VendorSerialFilter 供应商序列号过滤条件
type VendorSerialFilter struct {
	PartID     string `form:"part_id"`
	VendorName string `form:"vendor_name"`
	Status     string `form:"status"`
}

// ListVendorSerials 查询供应商序列号列表
func (s *VendorSerialService) ListVendorSerials(ctx context.Context, filter VendorSerialFilter) ([]entity.VendorSerial, error) {
	items, err := s.repos.VendorSerial.FindAll(ctx, map[string]string{
		"part_id":     filter.PartID,
		"vendor_name": filter.VendorName,
		"status":      filter.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("find vendor serials: %w", err)
	}
	return items, nil
}

func (s *VendorSerialService) transition(ctx context.Context, id string, updates map[string]interface{}, entry AuditEntry) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.VendorSerial.Transition(ctx, id, entity.VendorSerialStatusPending, updates); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return conflictf("vendor serial %s is no longer pending", id)
			}
			return err
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return writeErr(err, "update vendor serial", "vendor serial already exists")
	}
	s.audit.committed(entry)
	s.logger.Info("vendor serial transition",
		zap.String("id", id),
		zap.String("from", entry.FromStatus),
		zap.String("to", entry.ToStatus),
		zap.String("actor", entry.Actor),
	)
	return nil
}

// pendingVendorSerial 终态记录不能再迁移
func pendingVendorSerial(vs *entity.VendorSerial, target string) error {
	switch vs.Status {
	case entity.VendorSerialStatusPending:
		return nil
	case entity.VendorSerialStatusAccepted:
		metrics.Conflict("vendor_transition")
		return conflictf("vendor serial %s is already accepted and cannot be %s", vs.ID, target)
	case entity.VendorSerialStatusRejected:
		metrics.Conflict("vendor_transition")
		return conflictf("vendor serial %s is already rejected and cannot be %s", vs.ID, target)
	}
	return conflictf("vendor serial %s has unknown status %s", vs.ID, vs.Status)
}

func checkVendorFormat(serial string) string {
	switch {
	case serial == "":
		return "vendor serial number must not be empty"
	case len(serial) > MaxVendorSerialLength:
		return fmt.Sprintf("vendor serial number exceeds %d characters", MaxVendorSerialLength)
	case !vendorSerialFormat.MatchString(serial):
		return "vendor serial number may only contain letters, digits, '.', '_', '/' and '-'"
	}
	return ""
}
