package models

import (
	"time"

	"gorm.io/datatypes"
)

// TemplateScore is the persisted output of the template score refresh job.
// One row per template, fully rewritten on every refresh.
type TemplateScore struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	TemplateID uint64 `gorm:"not null;uniqueIndex"`
	StrategyID uint64 `gorm:"not null"`

	Score   int     `gorm:"not null;index"`
	Score01 float64 `gorm:"not null"`

	Breakdown datatypes.JSON `gorm:"type:jsonb"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TemplateScore) TableName() string {
	return "template_scores"
}
