package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PropagationRepository 序列号流转仓库
type PropagationRepository struct {
	db *gorm.DB
}

func NewPropagationRepository(db *gorm.DB) *PropagationRepository {
	return &PropagationRepository{db: db}
}

// GroupCount 分组计数
type GroupCount struct {
	Key   string `gorm:"column:group_key"`
	Count int64  `gorm:"column:group_count"`
}

// CreateEdge 写入流转边及其父子展开
// 多条写入应在调用方事务内完成
func (r *PropagationRepository) CreateEdge(ctx context.Context, edge *entity.PropagationEdge) error {
	if err := r.db.WithContext(ctx).Create(edge).Error; err != nil {
		return translate(err)
	}
	links := make([]entity.PropagationLink, 0, len(edge.ParentIdentityIDs)*len(edge.ChildIdentityIDs))
	for _, parent := range edge.ParentIdentityIDs {
		for _, child := range edge.ChildIdentityIDs {
			links = append(links, entity.PropagationLink{
				ID:               uuid.New().String()[:32],
				EdgeID:           edge.ID,
				ParentIdentityID: parent,
				ChildIdentityID:  child,
			})
		}
	}
	if len(links) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&links).Error)
}

// FindParentIDs 查询一组序列号的直接父节点（排除自环）
func (r *PropagationRepository) FindParentIDs(ctx context.Context, childIDs []string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.PropagationLink{}).
		Distinct("parent_identity_id").
		Where("child_identity_id IN ? AND parent_identity_id <> child_identity_id", childIDs).
		Pluck("parent_identity_id", &ids).Error
	return ids, err
}

// FindChildIDs 查询一组序列号的直接子节点（排除自环）
func (r *PropagationRepository) FindChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.PropagationLink{}).
		Distinct("child_identity_id").
		Where("parent_identity_id IN ? AND parent_identity_id <> child_identity_id", parentIDs).
		Pluck("child_identity_id", &ids).Error
	return ids, err
}

// FindEdgesByIdentity 查询涉及某序列号的全部流转边（按工序顺序）
func (r *PropagationRepository) FindEdgesByIdentity(ctx context.Context, identityID string) ([]entity.PropagationEdge, error) {
	var items []entity.PropagationEdge
	sub := r.db.Model(&entity.PropagationLink{}).
		Select("edge_id").
		Where("parent_identity_id = ? OR child_identity_id = ?", identityID, identityID)
	err := r.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Order("routing_sequence ASC, created_at ASC").
		Find(&items).Error
	return items, err
}

// FindByPart 查询物料的流转记录
func (r *PropagationRepository) FindByPart(ctx context.Context, partID string, filters map[string]string) ([]entity.PropagationEdge, error) {
	var items []entity.PropagationEdge
	query := r.db.WithContext(ctx).Where("part_id = ?", partID)
	if op := filters["operation_code"]; op != "" {
		query = query.Where("operation_code = ?", op)
	}
	if typ := filters["propagation_type"]; typ != "" {
		query = query.Where("propagation_type = ?", typ)
	}
	err := query.Order("created_at DESC, routing_sequence DESC").Find(&items).Error
	return items, err
}

// CountByType 按流转类型统计
func (r *PropagationRepository) CountByType(ctx context.Context, partID string) ([]GroupCount, error) {
	return r.countBy(ctx, partID, "propagation_type")
}

// CountByOperation 按工序统计
func (r *PropagationRepository) CountByOperation(ctx context.Context, partID string) ([]GroupCount, error) {
	return r.countBy(ctx, partID, "operation_code")
}

func (r *PropagationRepository) countBy(ctx context.Context, partID, column string) ([]GroupCount, error) {
	var rows []GroupCount
	err := r.db.WithContext(ctx).
		Model(&entity.PropagationEdge{}).
		Select(column+" AS group_key, COUNT(*) AS group_count").
		Where("part_id = ?", partID).
		Group(column).
		Scan(&rows).Error
	return rows, err
}
