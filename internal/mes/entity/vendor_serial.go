package entity

import "time"

// 供应商序列号状态
const (
	VendorSerialStatusPending  = "PENDING"
	VendorSerialStatusAccepted = "ACCEPTED"
	VendorSerialStatusRejected = "REJECTED"
)

// VendorSerial 供应商序列号
// 唯一性范围是 (vendor_name, part_id, vendor_serial_number)
type VendorSerial struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:32"`
	VendorSerialNumber string     `json:"vendor_serial_number" gorm:"size:128;not null;uniqueIndex:uk_vendor_part_serial,priority:3"`
	VendorName         string     `json:"vendor_name" gorm:"size:128;not null;uniqueIndex:uk_vendor_part_serial,priority:1"`
	PartID             string     `json:"part_id" gorm:"size:32;not null;uniqueIndex:uk_vendor_part_serial,priority:2;index"`
	ReceivedDate       time.Time  `json:"received_date"`
	Status             string     `json:"status" gorm:"size:16;not null;index"`
	LinkedIdentityID   *string    `json:"linked_identity_id" gorm:"size:32;index"`
	RejectionReason    string     `json:"rejection_reason" gorm:"type:text"`
	AcceptedBy         *string    `json:"accepted_by" gorm:"size:64"`
	AcceptedAt         *time.Time `json:"accepted_at"`
	RejectedBy         *string    `json:"rejected_by" gorm:"size:64"`
	RejectedAt         *time.Time `json:"rejected_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// 关联
	LinkedIdentity *SerialIdentity `json:"linked_identity,omitempty" gorm:"foreignKey:LinkedIdentityID"`
}

func (VendorSerial) TableName() string {
	return "vendor_serials"
}
