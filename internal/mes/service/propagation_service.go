package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// DefaultLineageMaxDepth 谱系遍历的默认最大深度
const DefaultLineageMaxDepth = 64

// PropagationService 序列号流转/谱系服务
type PropagationService struct {
	repos    *repository.Repositories
	audit    *AuditService
	maxDepth int
	logger   *zap.Logger
}

func NewPropagationService(repos *repository.Repositories, audit *AuditService, maxDepth int, logger *zap.Logger) *PropagationService {
	if maxDepth <= 0 {
		maxDepth = DefaultLineageMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropagationService{repos: repos, audit: audit, maxDepth: maxDepth, logger: logger}
}

// PassThroughReq 直通流转请求
type PassThroughReq struct {
	SourceID        string `json:"source_id" binding:"required"`
	OperationCode   string `json:"operation_code" binding:"required"`
	RoutingSequence int    `json:"routing_sequence"`
	WorkCenterID    string `json:"work_center_id"`
	Quantity        int    `json:"quantity"`
}

// PropagatePassThrough 1:1 直通流转
func (s *PropagationService) PropagatePassThrough(ctx context.Context, req PassThroughReq, actor string) (*entity.PropagationEdge, error) {
	if err := checkStep(req.OperationCode, req.RoutingSequence, req.Quantity); err != nil {
		return nil, err
	}
	edges, err := s.record(ctx, entity.PropagationPassThrough, actor, func(tx *repository.Repositories) ([]*entity.PropagationEdge, error) {
		source, err := tx.Identity.FindByID(ctx, req.SourceID)
		if err != nil {
			return nil, lookupErr(err, "identity", req.SourceID)
		}
		edge := newEdge(source.PartID, entity.PropagationPassThrough, req.OperationCode, req.RoutingSequence, req.Quantity,
			[]string{source.ID}, []string{source.ID})
		edge.WorkCenterID = optional(req.WorkCenterID)
		return []*entity.PropagationEdge{edge}, nil
	})
	if err != nil {
		return nil, err
	}
	return edges[0], nil
}

// SplitReq 拆分流转请求
type SplitReq struct {
	SourceID        string   `json:"source_id" binding:"required"`
	OperationCode   string   `json:"operation_code" binding:"required"`
	RoutingSequence int      `json:"routing_sequence"`
	TargetIDs       []string `json:"target_ids" binding:"required"`
}

// PropagateSplit 一拆多，每个目标一条边，父节点为来源，子节点为全部目标
func (s *PropagationService) PropagateSplit(ctx context.Context, req SplitReq, actor string) ([]*entity.PropagationEdge, error) {
	if err := checkStep(req.OperationCode, req.RoutingSequence, 1); err != nil {
		return nil, err
	}
	if err := checkIDSet("target", req.TargetIDs, req.SourceID); err != nil {
		return nil, err
	}
	return s.record(ctx, entity.PropagationSplit, actor, func(tx *repository.Repositories) ([]*entity.PropagationEdge, error) {
		source, err := tx.Identity.FindByID(ctx, req.SourceID)
		if err != nil {
			return nil, lookupErr(err, "identity", req.SourceID)
		}
		if err := requireAll(ctx, tx, req.TargetIDs); err != nil {
			return nil, err
		}
		edges := make([]*entity.PropagationEdge, 0, len(req.TargetIDs))
		for range req.TargetIDs {
			edges = append(edges, newEdge(source.PartID, entity.PropagationSplit, req.OperationCode, req.RoutingSequence, 1,
				[]string{source.ID}, req.TargetIDs))
		}
		return edges, nil
	})
}

// MergeReq 合并流转请求
type MergeReq struct {
	SourceIDs       []string `json:"source_ids" binding:"required"`
	OperationCode   string   `json:"operation_code" binding:"required"`
	RoutingSequence int      `json:"routing_sequence"`
	TargetID        string   `json:"target_id" binding:"required"`
}

// PropagateMerge 多合一，单条边，数量等于来源数
func (s *PropagationService) PropagateMerge(ctx context.Context, req MergeReq, actor string) (*entity.PropagationEdge, error) {
	if err := checkStep(req.OperationCode, req.RoutingSequence, 1); err != nil {
		return nil, err
	}
	if err := checkIDSet("source", req.SourceIDs, req.TargetID); err != nil {
		return nil, err
	}
	edges, err := s.record(ctx, entity.PropagationMerge, actor, func(tx *repository.Repositories) ([]*entity.PropagationEdge, error) {
		if err := requireAll(ctx, tx, req.SourceIDs); err != nil {
			return nil, err
		}
		target, err := tx.Identity.FindByID(ctx, req.TargetID)
		if err != nil {
			return nil, lookupErr(err, "identity", req.TargetID)
		}
		edge := newEdge(target.PartID, entity.PropagationMerge, req.OperationCode, req.RoutingSequence, len(req.SourceIDs),
			req.SourceIDs, []string{target.ID})
		return []*entity.PropagationEdge{edge}, nil
	})
	if err != nil {
		return nil, err
	}
	return edges[0], nil
}

// TransformationReq 转换流转请求
type TransformationReq struct {
	SourceID        string `json:"source_id" binding:"required"`
	OperationCode   string `json:"operation_code" binding:"required"`
	RoutingSequence int    `json:"routing_sequence"`
	Quantity        int    `json:"quantity"`
}

// PropagateTransformation 身份不变、形态改变的工序（如热处理），按工序顺序串联
func (s *PropagationService) PropagateTransformation(ctx context.Context, req TransformationReq, actor string) (*entity.PropagationEdge, error) {
	if err := checkStep(req.OperationCode, req.RoutingSequence, req.Quantity); err != nil {
		return nil, err
	}
	edges, err := s.record(ctx, entity.PropagationTransformation, actor, func(tx *repository.Repositories) ([]*entity.PropagationEdge, error) {
		source, err := tx.Identity.FindByID(ctx, req.SourceID)
		if err != nil {
			return nil, lookupErr(err, "identity", req.SourceID)
		}
		edge := newEdge(source.PartID, entity.PropagationTransformation, req.OperationCode, req.RoutingSequence, req.Quantity,
			[]string{source.ID}, []string{source.ID})
		return []*entity.PropagationEdge{edge}, nil
	})
	if err != nil {
		return nil, err
	}
	return edges[0], nil
}

// Lineage 序列号谱系
type Lineage struct {
	Identity           *entity.SerialIdentity   `json:"identity"`
	Ancestors          []entity.SerialIdentity  `json:"ancestors"`
	Descendants        []entity.SerialIdentity  `json:"descendants"`
	PropagationHistory []entity.PropagationEdge `json:"propagation_history"`
	// Truncated 遍历达到最大深度时为 true
	Truncated bool `json:"truncated"`
}

// GetSerialLineage 查询序列号的祖先、后代（传递闭包）及流转历史
func (s *PropagationService) GetSerialLineage(ctx context.Context, identityID string) (*Lineage, error) {
	identity, err := s.repos.Identity.FindByID(ctx, identityID)
	if err != nil {
		return nil, lookupErr(err, "identity", identityID)
	}

	ancestorIDs, upTrunc, err := s.traverse(ctx, identityID, s.repos.Propagation.FindParentIDs)
	if err != nil {
		return nil, fmt.Errorf("traverse ancestors: %w", err)
	}
	descendantIDs, downTrunc, err := s.traverse(ctx, identityID, s.repos.Propagation.FindChildIDs)
	if err != nil {
		return nil, fmt.Errorf("traverse descendants: %w", err)
	}

	ancestors, err := s.loadOrdered(ctx, ancestorIDs)
	if err != nil {
		return nil, err
	}
	descendants, err := s.loadOrdered(ctx, descendantIDs)
	if err != nil {
		return nil, err
	}
	history, err := s.repos.Propagation.FindEdgesByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("find propagation history: %w", err)
	}

	return &Lineage{
		Identity:           identity,
		Ancestors:          ancestors,
		Descendants:        descendants,
		PropagationHistory: history,
		Truncated:          upTrunc || downTrunc,
	}, nil
}

// PropagationFilter 流转记录过滤条件
type PropagationFilter struct {
	OperationCode   string `form:"operation_code"`
	PropagationType string `form:"propagation_type"`
}

// GetPropagationHistory 查询物料的流转记录
func (s *PropagationService) GetPropagationHistory(ctx context.Context, partID string, filter PropagationFilter) ([]entity.PropagationEdge, error) {
	items, err := s.repos.Propagation.FindByPart(ctx, partID, map[string]string{
		"operation_code":   filter.OperationCode,
		"propagation_type": filter.PropagationType,
	})
	if err != nil {
		return nil, fmt.Errorf("find propagation history: %w", err)
	}
	return items, nil
}

// PropagationStatistics 流转统计
type PropagationStatistics struct {
	PartID      string           `json:"part_id"`
	TotalEdges  int64            `json:"total_edges"`
	ByType      map[string]int64 `json:"by_type"`
	ByOperation map[string]int64 `json:"by_operation"`
}

// GetPropagationStatistics 按类型和工序统计物料的流转
func (s *PropagationService) GetPropagationStatistics(ctx context.Context, partID string) (*PropagationStatistics, error) {
	byType, err := s.repos.Propagation.CountByType(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	byOp, err := s.repos.Propagation.CountByOperation(ctx, partID)
	if err != nil {
		return nil, fmt.Errorf("count by operation: %w", err)
	}

	stats := &PropagationStatistics{
		PartID: partID,
		ByType: map[string]int64{
			entity.PropagationPassThrough:    0,
			entity.PropagationSplit:          0,
			entity.PropagationMerge:          0,
			entity.PropagationTransformation: 0,
		},
		ByOperation: make(map[string]int64, len(byOp)),
	}
	for _, row := range byType {
		stats.ByType[row.Key] = row.Count
		stats.TotalEdges += row.Count
	}
	for _, row := range byOp {
		stats.ByOperation[row.Key] = row.Count
	}
	return stats, nil
}

// record 在一个事务内写入全部边及每条边的审计事件，任一失败整体回滚
func (s *PropagationService) record(
	ctx context.Context,
	propagationType string,
	actor string,
	build func(tx *repository.Repositories) ([]*entity.PropagationEdge, error),
) ([]*entity.PropagationEdge, error) {
	var edges []*entity.PropagationEdge
	var entries []AuditEntry
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		edges, err = build(tx)
		if err != nil {
			return err
		}
		entries = entries[:0]
		for _, edge := range edges {
			edge.CreatedBy = actor
			if err := tx.Propagation.CreateEdge(ctx, edge); err != nil {
				return err
			}
			subject := edge.ParentIdentityIDs[0]
			if edge.PropagationType == entity.PropagationMerge {
				subject = edge.ChildIdentityIDs[0]
			}
			entry := AuditEntry{
				SubjectID:   subject,
				SubjectType: entity.SubjectIdentity,
				EventType:   entity.AuditEventPropagated,
				EventSource: entity.AuditSourcePropagation,
				Actor:       actor,
				PartID:      edge.PartID,
				Details: entity.JSONB{
					"edge_id":             edge.ID,
					"propagation_type":    edge.PropagationType,
					"operation_code":      edge.OperationCode,
					"routing_sequence":    edge.RoutingSequence,
					"quantity":            edge.Quantity,
					"parent_identity_ids": []string(edge.ParentIdentityIDs),
					"child_identity_ids":  []string(edge.ChildIdentityIDs),
				},
			}
			if err := s.audit.Record(ctx, tx, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, writeErr(err, "record propagation", "propagation edge already exists")
	}

	s.audit.committed(entries...)
	metrics.Propagated(propagationType, len(edges))
	s.logger.Info("propagation recorded",
		zap.String("type", propagationType),
		zap.String("operation_code", edges[0].OperationCode),
		zap.Int("edges", len(edges)),
	)
	return edges, nil
}

// traverse 有界BFS，visited 防环，起点不计入结果
func (s *PropagationService) traverse(
	ctx context.Context,
	start string,
	next func(ctx context.Context, ids []string) ([]string, error),
) ([]string, bool, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var out []string
	depth := 0
	for len(frontier) > 0 {
		ids, err := next(ctx, frontier)
		if err != nil {
			return nil, false, err
		}
		frontier = frontier[:0:0]
		for _, id := range ids {
			if visited[id] {
				continue
			}
			if depth == s.maxDepth {
				// 还有未访问的节点但已到最大深度
				metrics.LineageDepth(depth)
				return out, true, nil
			}
			visited[id] = true
			out = append(out, id)
			frontier = append(frontier, id)
		}
		if len(frontier) > 0 {
			depth++
		}
	}
	metrics.LineageDepth(depth)
	return out, false, nil
}

func (s *PropagationService) loadOrdered(ctx context.Context, ids []string) ([]entity.SerialIdentity, error) {
	result := make([]entity.SerialIdentity, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	items, err := s.repos.Identity.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	byID := make(map[string]entity.SerialIdentity, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func newEdge(partID, propagationType, operationCode string, routingSeq, quantity int, parents, children []string) *entity.PropagationEdge {
	return &entity.PropagationEdge{
		ID:                uuid.New().String()[:32],
		PartID:            partID,
		PropagationType:   propagationType,
		OperationCode:     operationCode,
		RoutingSequence:   routingSeq,
		Quantity:          quantity,
		ParentIdentityIDs: datatypes.JSONSlice[string](append([]string(nil), parents...)),
		ChildIdentityIDs:  datatypes.JSONSlice[string](append([]string(nil), children...)),
	}
}

func checkStep(operationCode string, routingSeq, quantity int) error {
	if strings.TrimSpace(operationCode) == "" {
		return validationf("operation code is required")
	}
	if routingSeq < 0 {
		return validationf("routing sequence must not be negative, got %d", routingSeq)
	}
	if quantity < 1 {
		return validationf("quantity must be at least 1, got %d", quantity)
	}
	return nil
}

// checkIDSet 校验id列表非空、无重复、不包含 other
func checkIDSet(kind string, ids []string, other string) error {
	if len(ids) == 0 {
		return validationf("at least one %s identity is required", kind)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return validationf("%s identity id must not be empty", kind)
		}
		if seen[id] {
			return validationf("duplicate %s identity %s", kind, id)
		}
		if id == other {
			return validationf("%s identity %s cannot also be the other side of the propagation", kind, id)
		}
		seen[id] = true
	}
	return nil
}

// requireAll 所有id都必须是已存在的序列号
func requireAll(ctx context.Context, tx *repository.Repositories, ids []string) error {
	found, err := tx.Identity.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("find identities: %w", err)
	}
	exists := make(map[string]bool, len(found))
	for _, item := range found {
		exists[item.ID] = true
	}
	for _, id := range ids {
		if !exists[id] {
			return notFound("identity", id)
		}
	}
	return nil
}
