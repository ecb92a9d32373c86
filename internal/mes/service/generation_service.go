package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/pattern"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SerialGenerationService 系统赋号服务
type SerialGenerationService struct {
	repos    *repository.Repositories
	catalog  *PartCatalog
	audit    *AuditService
	maxBatch int
	// defaultSite 物料未归属工厂时 {SITE} 的取值
	defaultSite string
	logger      *zap.Logger
	now         func() time.Time
}

func NewSerialGenerationService(
	repos *repository.Repositories,
	catalog *PartCatalog,
	audit *AuditService,
	maxBatch int,
	defaultSite string,
	logger *zap.Logger,
) *SerialGenerationService {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialGenerationService{
		repos:       repos,
		catalog:     catalog,
		audit:       audit,
		maxBatch:    maxBatch,
		defaultSite: defaultSite,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DefaultMaxBatchSize 单次批量操作上限
const DefaultMaxBatchSize = 1000

// MaxBatchSize 当前生效的批量上限
func (s *SerialGenerationService) MaxBatchSize() int {
	return s.maxBatch
}

// GenerateOptions 赋号附加参数
type GenerateOptions struct {
	WorkOrderID string            `json:"work_order_id"`
	LotNumber   string            `json:"lot_number"`
	Timestamp   *time.Time        `json:"timestamp"`
	Fields      map[string]string `json:"fields"`
	// FormatConfigID 指定格式配置，为空时按物料解析
	FormatConfigID string `json:"format_config_id"`
}

// DateRange 时间范围，两端都可为空
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// GenerateSystemSerial 为物料生成一个系统序列号
func (s *SerialGenerationService) GenerateSystemSerial(ctx context.Context, partID, actor string, opts GenerateOptions) (identity *entity.SerialIdentity, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGeneration("single", start, err) }()

	part, cfg, err := s.prepare(ctx, partID, opts.FormatConfigID)
	if err != nil {
		return nil, err
	}
	created, err := s.generate(ctx, part, cfg, actor, 1, opts)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// GenerateBatchSerials 批量生成系统序列号
// 整段流水号一次领取，全部成功或全部回滚
func (s *SerialGenerationService) GenerateBatchSerials(ctx context.Context, partID, actor string, count int, opts GenerateOptions) (identities []*entity.SerialIdentity, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGeneration("batch", start, err) }()

	if count < 1 || count > s.maxBatch {
		return nil, validationf("batch count must be between 1 and %d, got %d", s.maxBatch, count)
	}
	part, cfg, err := s.prepare(ctx, partID, opts.FormatConfigID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, part, cfg, actor, count, opts)
}

// TriggerContext 触发赋号的业务上下文
type TriggerContext struct {
	OperationCode string     `json:"operation_code"`
	WorkOrderID   string     `json:"work_order_id"`
	LotNumber     string     `json:"lot_number"`
	Actor         string     `json:"actor"`
	Timestamp     *time.Time `json:"timestamp"`
}

// TriggerSerialGeneration 按触发器配置赋号
// 停用、工序不匹配或非系统赋号的触发器直接跳过；没有匹配的触发器返回空列表
func (s *SerialGenerationService) TriggerSerialGeneration(ctx context.Context, partID, triggerType string, tc TriggerContext) ([]*entity.SerialIdentity, error) {
	if !entity.IsValidTriggerType(triggerType) {
		return nil, validationf("invalid trigger type %q", triggerType)
	}
	part, err := s.catalog.GetPart(ctx, partID)
	if err != nil {
		return nil, err
	}

	triggers, err := s.repos.Trigger.FindByPartAndType(ctx, partID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("find triggers: %w", err)
	}

	// 先校验全部触发器，再在同一事务内赋号，任一触发器失败则全部回滚
	type firing struct {
		triggerID string
		cfg       *entity.SerialFormatConfig
		count     int
	}
	var firings []firing
	for _, trigger := range triggers {
		if !trigger.IsActive {
			continue
		}
		if trigger.OperationCode != nil && *trigger.OperationCode != "" && *trigger.OperationCode != tc.OperationCode {
			continue
		}
		if trigger.AssignmentType != entity.OriginSystemGenerated {
			continue
		}

		cfg, err := s.resolveConfig(ctx, part, trigger.FormatConfigID)
		if err != nil {
			return nil, err
		}
		count := 1
		if trigger.IsBatchMode {
			count = trigger.BatchSize
			if count < 1 || count > s.maxBatch {
				return nil, &ConfigurationError{Message: fmt.Sprintf("trigger %s has invalid batch size %d", trigger.ID, trigger.BatchSize)}
			}
		}
		firings = append(firings, firing{triggerID: trigger.ID, cfg: cfg, count: count})
	}

	result := make([]*entity.SerialIdentity, 0)
	if len(firings) == 0 {
		return result, nil
	}

	opts := GenerateOptions{WorkOrderID: tc.WorkOrderID, LotNumber: tc.LotNumber, Timestamp: tc.Timestamp}
	var entries []AuditEntry
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for _, f := range firings {
			created, audit, err := s.mint(ctx, tx, part, f.cfg, tc.Actor, f.count, opts)
			if err != nil {
				return fmt.Errorf("trigger %s: %w", f.triggerID, err)
			}
			result = append(result, created...)
			entries = append(entries, audit...)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) || repository.IsUniqueViolation(err) {
			metrics.Conflict("serial")
		}
		return nil, writeErr(err, "trigger serial generation", "generated serial is not unique")
	}
	s.audit.committed(entries...)
	metrics.IdentitiesCreated(entity.OriginSystemGenerated, len(result))

	s.logger.Info("trigger serial generation",
		zap.String("part_id", partID),
		zap.String("trigger_type", triggerType),
		zap.String("operation_code", tc.OperationCode),
		zap.Int("generated", len(result)),
	)
	return result, nil
}

// GetGeneratedSerials 查询物料的系统序列号（最新优先）
func (s *SerialGenerationService) GetGeneratedSerials(ctx context.Context, partID string, rng *DateRange) ([]entity.SerialIdentity, error) {
	var from, to *time.Time
	if rng != nil {
		from, to = utcPtr(rng.From), utcPtr(rng.To)
	}
	items, err := s.repos.Identity.FindByOrigin(ctx, partID, entity.OriginSystemGenerated, from, to)
	if err != nil {
		return nil, fmt.Errorf("find generated serials: %w", err)
	}
	return items, nil
}

// PreviewResult 序列号预览
type PreviewResult struct {
	Serial         string           `json:"serial"`
	FormatConfigID string           `json:"format_config_id"`
	Sequence       int64            `json:"sequence"`
	Metadata       pattern.Metadata `json:"metadata"`
}

// PreviewSerial 预览下一个序列号，不领取流水号
func (s *SerialGenerationService) PreviewSerial(ctx context.Context, partID string, opts GenerateOptions) (*PreviewResult, error) {
	part, cfg, err := s.prepare(ctx, partID, opts.FormatConfigID)
	if err != nil {
		return nil, err
	}
	parsed := pattern.ParsePattern(cfg.PatternTemplate)
	ts := s.timestamp(opts.Timestamp)
	return &PreviewResult{
		Serial:         pattern.BuildSerial(parsed, s.generationContext(part, ts, cfg.NextSequence, opts.Fields)),
		FormatConfigID: cfg.ID,
		Sequence:       cfg.NextSequence,
		Metadata:       parsed.Metadata,
	}, nil
}

// CreateFormatConfigReq 创建格式配置请求
type CreateFormatConfigReq struct {
	Name                string `json:"name" binding:"required"`
	PartID              string `json:"part_id"`
	SiteID              string `json:"site_id"`
	PatternTemplate     string `json:"pattern_template" binding:"required"`
	SequentialStart     *int64 `json:"sequential_start"`
	SequentialIncrement int64  `json:"sequential_increment"`
	IsActive            *bool  `json:"is_active"`
}

// CreateFormatConfig 创建格式配置
func (s *SerialGenerationService) CreateFormatConfig(ctx context.Context, req CreateFormatConfigReq, actor string) (*entity.SerialFormatConfig, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationf("format config name is required")
	}
	if req.PartID == "" && req.SiteID == "" {
		return nil, validationf("format config must be scoped to a part or a site")
	}
	if res := pattern.ValidatePatternSyntax(req.PatternTemplate); !res.IsValid {
		return nil, validationf("invalid pattern: %s", strings.Join(res.Errors, "; "))
	}
	if req.SequentialIncrement < 0 {
		return nil, validationf("sequential increment must be positive, got %d", req.SequentialIncrement)
	}

	cfg := &entity.SerialFormatConfig{
		ID:                  uuid.New().String()[:32],
		Name:                strings.TrimSpace(req.Name),
		PatternTemplate:     req.PatternTemplate,
		SequentialStart:     1,
		SequentialIncrement: 1,
		IsActive:            true,
		CreatedBy:           actor,
	}
	if req.SequentialStart != nil {
		cfg.SequentialStart = *req.SequentialStart
	}
	if req.SequentialIncrement > 0 {
		cfg.SequentialIncrement = req.SequentialIncrement
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	cfg.NextSequence = cfg.SequentialStart

	if req.PartID != "" {
		if _, err := s.catalog.GetPart(ctx, req.PartID); err != nil {
			return nil, err
		}
		cfg.PartID = &req.PartID
	}
	if req.SiteID != "" {
		if _, err := s.repos.Part.FindSiteByID(ctx, req.SiteID); err != nil {
			return nil, lookupErr(err, "site", req.SiteID)
		}
		cfg.SiteID = &req.SiteID
	}

	if err := s.repos.FormatConfig.Create(ctx, cfg); err != nil {
		return nil, writeErr(err, "create format config", "format config already exists")
	}
	s.logger.Info("format config created", zap.String("id", cfg.ID), zap.String("template", cfg.PatternTemplate))
	return cfg, nil
}

// GetActiveFormatConfig 解析物料当前生效的格式配置
func (s *SerialGenerationService) GetActiveFormatConfig(ctx context.Context, partID string) (*entity.SerialFormatConfig, error) {
	_, cfg, err := s.prepare(ctx, partID, "")
	return cfg, err
}

// ListFormatConfigs 查询格式配置
func (s *SerialGenerationService) ListFormatConfigs(ctx context.Context, filters map[string]string) ([]entity.SerialFormatConfig, error) {
	items, err := s.repos.FormatConfig.FindAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("find format configs: %w", err)
	}
	return items, nil
}

// CreateTriggerReq 创建触发器请求
type CreateTriggerReq struct {
	PartID         string `json:"part_id" binding:"required"`
	TriggerType    string `json:"trigger_type" binding:"required"`
	OperationCode  string `json:"operation_code"`
	AssignmentType string `json:"assignment_type"`
	IsBatchMode    bool   `json:"is_batch_mode"`
	BatchSize      int    `json:"batch_size"`
	FormatConfigID string `json:"format_config_id" binding:"required"`
	IsActive       *bool  `json:"is_active"`
}

// CreateTrigger 创建赋号触发器
func (s *SerialGenerationService) CreateTrigger(ctx context.Context, req CreateTriggerReq, actor string) (*entity.SerialTrigger, error) {
	if !entity.IsValidTriggerType(req.TriggerType) {
		return nil, validationf("invalid trigger type %q", req.TriggerType)
	}
	assignment := req.AssignmentType
	if assignment == "" {
		assignment = entity.OriginSystemGenerated
	}
	switch assignment {
	case entity.OriginSystemGenerated, entity.OriginVendorAssigned, entity.OriginLateAssignment:
	default:
		return nil, validationf("invalid assignment type %q", assignment)
	}
	batchSize := 1
	if req.IsBatchMode {
		if req.BatchSize < 1 || req.BatchSize > s.maxBatch {
			return nil, validationf("batch size must be between 1 and %d, got %d", s.maxBatch, req.BatchSize)
		}
		batchSize = req.BatchSize
	}
	if _, err := s.catalog.GetPart(ctx, req.PartID); err != nil {
		return nil, err
	}
	if _, err := s.repos.FormatConfig.FindByID(ctx, req.FormatConfigID); err != nil {
		return nil, lookupErr(err, "format config", req.FormatConfigID)
	}

	trigger := &entity.SerialTrigger{
		ID:             uuid.New().String()[:32],
		PartID:         req.PartID,
		TriggerType:    req.TriggerType,
		AssignmentType: assignment,
		IsBatchMode:    req.IsBatchMode,
		BatchSize:      batchSize,
		FormatConfigID: req.FormatConfigID,
		IsActive:       true,
		CreatedBy:      actor,
	}
	if req.OperationCode != "" {
		trigger.OperationCode = &req.OperationCode
	}
	if req.IsActive != nil {
		trigger.IsActive = *req.IsActive
	}
	if err := s.repos.Trigger.Create(ctx, trigger); err != nil {
		return nil, writeErr(err, "create trigger", "trigger already exists")
	}
	return trigger, nil
}

// ListTriggers 查询物料的触发器
func (s *SerialGenerationService) ListTriggers(ctx context.Context, partID string) ([]entity.SerialTrigger, error) {
	items, err := s.repos.Trigger.FindByPart(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("find triggers: %w", err)
	}
	return items, nil
}

// SetTriggerActive 启用/停用触发器
func (s *SerialGenerationService) SetTriggerActive(ctx context.Context, id string, active bool) error {
	if err := s.repos.Trigger.SetActive(ctx, id, active); err != nil {
		return lookupErr(err, "trigger", id)
	}
	return nil
}

// prepare 查询物料并解析格式配置，均在事务外完成
func (s *SerialGenerationService) prepare(ctx context.Context, partID, formatConfigID string) (*entity.Part, *entity.SerialFormatConfig, error) {
	part, err := s.catalog.GetPart(ctx, partID)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.resolveConfig(ctx, part, formatConfigID)
	if err != nil {
		return nil, nil, err
	}
	return part, cfg, nil
}

// resolveConfig 物料级配置优先，其次物料所在工厂的配置
func (s *SerialGenerationService) resolveConfig(ctx context.Context, part *entity.Part, formatConfigID string) (*entity.SerialFormatConfig, error) {
	if formatConfigID != "" {
		cfg, err := s.repos.FormatConfig.FindByID(ctx, formatConfigID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &ConfigurationError{Message: fmt.Sprintf("serial format configuration %s not found", formatConfigID)}
			}
			return nil, fmt.Errorf("find format config: %w", err)
		}
		if !cfg.IsActive {
			return nil, &ConfigurationError{Message: fmt.Sprintf("serial format configuration %s is not active", formatConfigID)}
		}
		return cfg, nil
	}

	cfg, err := s.repos.FormatConfig.FindActiveByPart(ctx, part.ID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find format config: %w", err)
	}
	if part.SiteID != "" {
		cfg, err = s.repos.FormatConfig.FindActiveBySite(ctx, part.SiteID)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find format config: %w", err)
		}
	}
	return nil, &ConfigurationError{Message: fmt.Sprintf("no active serial format configuration for part %s", part.ID)}
}

// generate 在一个事务内领取流水号、校验唯一性、写入序列号和审计事件
func (s *SerialGenerationService) generate(
	ctx context.Context,
	part *entity.Part,
	cfg *entity.SerialFormatConfig,
	actor string,
	count int,
	opts GenerateOptions,
) ([]*entity.SerialIdentity, error) {
	var identities []*entity.SerialIdentity
	var entries []AuditEntry
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		identities, entries, err = s.mint(ctx, tx, part, cfg, actor, count, opts)
		return err
	})
	if err != nil {
		if IsConflict(err) || repository.IsUniqueViolation(err) {
			metrics.Conflict("serial")
		}
		return nil, writeErr(err, "generate serials", "generated serial is not unique")
	}

	s.audit.committed(entries...)
	metrics.IdentitiesCreated(entity.OriginSystemGenerated, len(identities))
	s.logger.Info("system serials generated",
		zap.String("part_id", part.ID),
		zap.String("format_config_id", cfg.ID),
		zap.Int("count", len(identities)),
		zap.String("first", identities[0].SerialNumber),
	)
	return identities, nil
}

// mint 在调用方事务内赋号，只使用 tx 仓库
func (s *SerialGenerationService) mint(
	ctx context.Context,
	tx *repository.Repositories,
	part *entity.Part,
	cfg *entity.SerialFormatConfig,
	actor string,
	count int,
	opts GenerateOptions,
) ([]*entity.SerialIdentity, []AuditEntry, error) {
	parsed := pattern.ParsePattern(cfg.PatternTemplate)
	ts := s.timestamp(opts.Timestamp)

	claim, err := tx.FormatConfig.ClaimSequence(ctx, cfg.ID, count)
	if err != nil {
		return nil, nil, fmt.Errorf("claim sequence: %w", err)
	}

	serials := make([]string, count)
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		serial := pattern.BuildSerial(parsed, s.generationContext(part, ts, claim.At(i), opts.Fields))
		if _, dup := seen[serial]; dup {
			return nil, nil, conflictf("generated serial %q is not unique within the batch", serial)
		}
		seen[serial] = struct{}{}
		serials[i] = serial
	}

	existing, err := tx.Identity.ExistingSerials(ctx, part.ID, serials)
	if err != nil {
		return nil, nil, fmt.Errorf("check serial uniqueness: %w", err)
	}
	if len(existing) > 0 {
		return nil, nil, conflictf("serial %q already exists for part %s", existing[0], part.ID)
	}

	identities := make([]*entity.SerialIdentity, 0, count)
	entries := make([]AuditEntry, 0, count)
	cfgID := cfg.ID
	for i, serial := range serials {
		identity := &entity.SerialIdentity{
			ID:             uuid.New().String()[:32],
			PartID:         part.ID,
			SerialNumber:   serial,
			OriginMethod:   entity.OriginSystemGenerated,
			Status:         entity.IdentityStatusActive,
			FormatConfigID: &cfgID,
			WorkOrderID:    optional(opts.WorkOrderID),
			LotNumber:      optional(opts.LotNumber),
			CreatedBy:      actor,
		}
		identities = append(identities, identity)
		entries = append(entries, AuditEntry{
			SubjectID:   identity.ID,
			SubjectType: entity.SubjectIdentity,
			EventType:   entity.AuditEventCreated,
			EventSource: entity.AuditSourceSystemGeneration,
			Actor:       actor,
			PartID:      part.ID,
			ToStatus:    entity.IdentityStatusActive,
			Details: entity.JSONB{
				"serial_number":    serial,
				"format_config_id": cfg.ID,
				"sequence":         claim.At(i),
			},
		})
	}
	if err := tx.Identity.CreateBatch(ctx, identities); err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if err := s.audit.Record(ctx, tx, e); err != nil {
			return nil, nil, err
		}
	}
	return identities, entries, nil
}

func (s *SerialGenerationService) timestamp(ts *time.Time) time.Time {
	if ts != nil && !ts.IsZero() {
		return ts.UTC()
	}
	return s.now()
}

func (s *SerialGenerationService) generationContext(part *entity.Part, ts time.Time, seq int64, fields map[string]string) pattern.Context {
	ctx := pattern.Context{
		SiteID:     part.SiteID,
		PartID:     part.ID,
		PartNumber: part.PartNumber,
		Timestamp:  ts,
		Sequence:   seq,
		Fields:     fields,
	}
	switch {
	case part.Site != nil:
		ctx.SiteCode = part.Site.Code
	case part.SiteID == "":
		ctx.SiteCode = s.defaultSite
	}
	return ctx
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
