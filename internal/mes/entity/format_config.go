package entity

import "time"

// SerialFormatConfig 序列号格式配置
// NextSequence 是持久化计数器，只能通过 FormatConfigRepository.ClaimSequence 推进
type SerialFormatConfig struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:32"`
	Name                string    `json:"name" gorm:"size:128;not null"`
	PartID              *string   `json:"part_id" gorm:"size:32;index"`
	SiteID              *string   `json:"site_id" gorm:"size:32;index"`
	PatternTemplate     string    `json:"pattern_template" gorm:"size:256;not null"`
	SequentialStart     int64     `json:"sequential_start" gorm:"not null"`
	SequentialIncrement int64     `json:"sequential_increment" gorm:"not null"`
	NextSequence        int64     `json:"next_sequence" gorm:"not null"`
	IsActive            bool      `json:"is_active" gorm:"not null"`
	CreatedBy           string    `json:"created_by" gorm:"size:64"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (SerialFormatConfig) TableName() string {
	return "serial_format_configs"
}

// 触发类型
const (
	TriggerOperationComplete = "OPERATION_COMPLETE"
	TriggerWorkOrderCreate   = "WORK_ORDER_CREATE"
	TriggerMaterialReceipt   = "MATERIAL_RECEIPT"
	TriggerQualityCheckpoint = "QUALITY_CHECKPOINT"
	TriggerBatchComplete     = "BATCH_COMPLETE"
)

// ValidTriggerTypes 合法的触发类型
var ValidTriggerTypes = []string{
	TriggerOperationComplete,
	TriggerWorkOrderCreate,
	TriggerMaterialReceipt,
	TriggerQualityCheckpoint,
	TriggerBatchComplete,
}

// IsValidTriggerType 是否合法的触发类型
func IsValidTriggerType(t string) bool {
	for _, v := range ValidTriggerTypes {
		if v == t {
			return true
		}
	}
	return false
}

// SerialTrigger 序列号自动生成触发器
type SerialTrigger struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	PartID         string    `json:"part_id" gorm:"size:32;not null;index:idx_trigger_part_type"`
	TriggerType    string    `json:"trigger_type" gorm:"size:32;not null;index:idx_trigger_part_type"`
	OperationCode  *string   `json:"operation_code" gorm:"size:64"`
	AssignmentType string    `json:"assignment_type" gorm:"size:32;not null;default:SYSTEM_GENERATED"`
	IsBatchMode    bool      `json:"is_batch_mode" gorm:"not null"`
	BatchSize      int       `json:"batch_size" gorm:"not null"`
	FormatConfigID string    `json:"format_config_id" gorm:"size:32;not null"`
	IsActive       bool      `json:"is_active" gorm:"not null"`
	CreatedBy      string    `json:"created_by" gorm:"size:64"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 关联
	FormatConfig *SerialFormatConfig `json:"format_config,omitempty" gorm:"foreignKey:FormatConfigID"`
}

func (SerialTrigger) TableName() string {
	return "serial_triggers"
}
