package entity

import "time"

// Site 工厂/站点
type Site struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Site) TableName() string {
	return "sites"
}

// Part 零件主数据（只读，由ERP/PLM同步）
type Part struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	PartNumber string    `json:"part_number" gorm:"size:64;not null;uniqueIndex"`
	Name       string    `json:"name" gorm:"size:256;not null"`
	SiteID     string    `json:"site_id" gorm:"size:32;index"`
	IsActive   bool      `json:"is_active" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联
	Site *Site `json:"site,omitempty" gorm:"foreignKey:SiteID"`
}

func (Part) TableName() string {
	return "parts"
}
