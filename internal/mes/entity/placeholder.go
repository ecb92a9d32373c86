package entity

import "time"

// 占位符状态
const (
	PlaceholderStatusPending    = "PENDING"
	PlaceholderStatusSerialized = "SERIALIZED"
	PlaceholderStatusFailed     = "FAILED"
)

// SerialPlaceholder 延迟赋号占位符
// PENDING → SERIALIZED|FAILED 仅允许一次
type SerialPlaceholder struct {
	ID                      string     `json:"id" gorm:"primaryKey;size:32"`
	PlaceholderCode         string     `json:"placeholder_code" gorm:"size:64;not null;uniqueIndex"`
	PartID                  string     `json:"part_id" gorm:"size:32;not null;index"`
	WorkOrderID             *string    `json:"work_order_id" gorm:"size:32;index"`
	LotNumber               *string    `json:"lot_number" gorm:"size:64;index"`
	Status                  string     `json:"status" gorm:"size:16;not null;index"`
	IdentityID              *string    `json:"identity_id" gorm:"size:32"`
	SerialNumber            string     `json:"serial_number" gorm:"size:128"`
	AssignmentOperationCode string     `json:"assignment_operation_code" gorm:"size:64"`
	FailureReason           string     `json:"failure_reason" gorm:"type:text"`
	Notes                   string     `json:"notes" gorm:"type:text"`
	SerializedAt            *time.Time `json:"serialized_at"`
	SerializedBy            *string    `json:"serialized_by" gorm:"size:64"`
	FailedAt                *time.Time `json:"failed_at"`
	FailedBy                *string    `json:"failed_by" gorm:"size:64"`
	CreatedBy               string     `json:"created_by" gorm:"size:64"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	// 关联
	Identity *SerialIdentity `json:"identity,omitempty" gorm:"foreignKey:IdentityID"`
}

func (SerialPlaceholder) TableName() string {
	return "serial_placeholders"
}
