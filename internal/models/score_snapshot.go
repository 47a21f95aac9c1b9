package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScoreSnapshot records one evaluation of a (template, strategy, period,
// scope) combination. Performance is null when the evaluation never finished;
// such rows are kept so the scorer can report why a period did not count.
type ScoreSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	TemplateID uint64 `gorm:"not null;index:idx_snapshot_template"`
	StrategyID uint64 `gorm:"not null;index"`

	PeriodMonths *int
	PeriodDays   *int

	// Scope is "training" or "validation".
	Scope string `gorm:"type:varchar(12);not null;index"`

	Performance datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt *time.Time `gorm:"type:timestamptz"`
}

func (ScoreSnapshot) TableName() string {
	return "score_snapshots"
}
