package models

import (
	"time"

	"gorm.io/datatypes"
)

// Template is a strategy blueprint in the gallery. Scoring reads its cached
// backtests and score snapshots; the default params seed new strategies.
type Template struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Slug        string `gorm:"type:varchar(80);uniqueIndex;not null"`
	Name        string `gorm:"type:varchar(120);not null"`
	Description string `gorm:"type:text"`
	Category    string `gorm:"type:varchar(30);index"`

	Enabled bool `gorm:"default:true;index"`

	DefaultParams datatypes.JSON `gorm:"type:jsonb"`

	// VerifyMetrics holds the latest out-of-sample re-run metrics written by
	// the backtest runner; null when the template was never re-verified.
	VerifyMetrics datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Template) TableName() string {
	return "templates"
}
