package models

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy is one concrete configuration of a template.
type Strategy struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	TemplateID uint64 `gorm:"not null;index"`
	Name       string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Ticker     string `gorm:"type:varchar(20);index"`

	Enabled bool `gorm:"default:false;index"`

	Params datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
