package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 流转类型
const (
	PropagationPassThrough    = "PASS_THROUGH"
	PropagationSplit          = "SPLIT"
	PropagationMerge          = "MERGE"
	PropagationTransformation = "TRANSFORMATION"
)

// PropagationEdge 序列号流转记录（谱系边）
type PropagationEdge struct {
	ID                string                      `json:"id" gorm:"primaryKey;size:32"`
	PartID            string                      `json:"part_id" gorm:"size:32;not null;index"`
	PropagationType   string                      `json:"propagation_type" gorm:"size:32;not null;index"`
	OperationCode     string                      `json:"operation_code" gorm:"size:64;not null;index"`
	RoutingSequence   int                         `json:"routing_sequence" gorm:"not null"`
	WorkCenterID      *string                     `json:"work_center_id" gorm:"size:32"`
	Quantity          int                         `json:"quantity" gorm:"not null"`
	ParentIdentityIDs datatypes.JSONSlice[string] `json:"parent_identity_ids"`
	ChildIdentityIDs  datatypes.JSONSlice[string] `json:"child_identity_ids"`
	CreatedBy         string                      `json:"created_by" gorm:"size:64"`
	CreatedAt         time.Time                   `json:"created_at" gorm:"index"`
}

func (PropagationEdge) TableName() string {
	return "serial_propagations"
}

// PropagationLink 谱系边的父子展开，用于祖先/后代遍历
type PropagationLink struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	EdgeID           string    `json:"edge_id" gorm:"size:32;not null;index"`
	ParentIdentityID string    `json:"parent_identity_id" gorm:"size:32;not null;index"`
	ChildIdentityID  string    `json:"child_identity_id" gorm:"size:32;not null;index"`
	CreatedAt        time.Time `json:"created_at"`
}

func (PropagationLink) TableName() string {
	return "serial_propagation_links"
}
