package entity

import "time"

// 审计主体类型
const (
	SubjectIdentity     = "IDENTITY"
	SubjectPlaceholder  = "PLACEHOLDER"
	SubjectVendorSerial = "VENDOR_SERIAL"
)

// 审计事件类型
const (
	AuditEventCreated       = "CREATED"
	AuditEventReceived      = "RECEIVED"
	AuditEventAccepted      = "ACCEPTED"
	AuditEventRejected      = "REJECTED"
	AuditEventSerialized    = "SERIALIZED"
	AuditEventFailed        = "FAILED"
	AuditEventPropagated    = "PROPAGATED"
	AuditEventStatusChanged = "STATUS_CHANGED"
)

// 审计事件来源
const (
	AuditSourceSystemGeneration = "SYSTEM_GENERATION"
	AuditSourceVendor           = "VENDOR"
	AuditSourceLateAssignment   = "LATE_ASSIGNMENT"
	AuditSourcePropagation      = "PROPAGATION"
	AuditSourceLifecycle        = "LIFECYCLE"
)

// SerialAuditEvent 序列号审计事件（只追加）
type SerialAuditEvent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	SubjectID   string    `json:"subject_id" gorm:"size:32;not null;index:idx_audit_subject"`
	SubjectType string    `json:"subject_type" gorm:"size:32;not null;index:idx_audit_subject"`
	EventType   string    `json:"event_type" gorm:"size:32;not null"`
	EventSource string    `json:"event_source" gorm:"size:32;not null"`
	Actor       string    `json:"actor" gorm:"size:64"`
	PartID      string    `json:"part_id" gorm:"size:32;index"`
	FromStatus  string    `json:"from_status" gorm:"size:16"`
	ToStatus    string    `json:"to_status" gorm:"size:16"`
	Details     JSONB     `json:"details" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (SerialAuditEvent) TableName() string {
	return "serial_audit_events"
}
