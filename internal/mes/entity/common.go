package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(raw, j)
}

// 序列号来源
const (
	OriginSystemGenerated = "SYSTEM_GENERATED"
	OriginVendorAssigned  = "VENDOR_ASSIGNED"
	OriginLateAssignment  = "LATE_ASSIGNMENT"
)

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&Site{},
		&Part{},
		&SerialFormatConfig{},
		&SerialTrigger{},
		&SerialIdentity{},
		&SerialPlaceholder{},
		&VendorSerial{},
		&PropagationEdge{},
		&PropagationLink{},
		&SerialAuditEvent{},
	}
}
