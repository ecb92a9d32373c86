package entity

import "time"

// 序列号状态
const (
	IdentityStatusActive   = "ACTIVE"
	IdentityStatusConsumed = "CONSUMED"
	IdentityStatusScrapped = "SCRAPPED"
	IdentityStatusShipped  = "SHIPPED"
)

// ValidIdentityTransitions 合法的序列号状态流转
var ValidIdentityTransitions = map[string][]string{
	IdentityStatusActive: {IdentityStatusConsumed, IdentityStatusScrapped, IdentityStatusShipped},
}

// SerialIdentity 序列号（单件唯一标识）
// 只允许变更状态，不允许删除，以保证谱系完整
type SerialIdentity struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	PartID         string    `json:"part_id" gorm:"size:32;not null;uniqueIndex:uk_identity_part_serial,priority:1"`
	SerialNumber   string    `json:"serial_number" gorm:"size:128;not null;uniqueIndex:uk_identity_part_serial,priority:2;index"`
	OriginMethod   string    `json:"origin_method" gorm:"size:32;not null;index"`
	Status         string    `json:"status" gorm:"size:16;not null"`
	FormatConfigID *string   `json:"format_config_id" gorm:"size:32"`
	WorkOrderID    *string   `json:"work_order_id" gorm:"size:32;index"`
	LotNumber      *string   `json:"lot_number" gorm:"size:64"`
	CreatedBy      string    `json:"created_by" gorm:"size:64"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SerialIdentity) TableName() string {
	return "serial_identities"
}
