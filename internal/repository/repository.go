package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"stratcraft/internal/models"
)

type ListTemplatesParams struct {
	Category *string
	Enabled  *bool
	Limit    int
	Offset   int
}

type ListSystemSettingsParams struct {
	Prefix *string
	Limit  int
	Offset int
}

// Repository is the storage surface consumed by the scoring services. The
// scoring engine itself never touches it; services convert rows into plain
// in-memory records first.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Gallery.
	UpsertTemplate(ctx context.Context, item *models.Template) error
	GetTemplateByID(ctx context.Context, id uint64) (*models.Template, error)
	GetTemplateBySlug(ctx context.Context, slug string) (*models.Template, error)
	ListTemplates(ctx context.Context, params ListTemplatesParams) ([]models.Template, error)
	ListStrategiesByTemplateID(ctx context.Context, templateID uint64) ([]models.Strategy, error)
	ListStrategies(ctx context.Context) ([]models.Strategy, error)

	// Backtest cache (candidate records for the Parameter Scorer).
	InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error
	ListBacktestResultsByTemplateID(ctx context.Context, templateID uint64, limit int) ([]models.BacktestResult, error)

	// Score snapshots and persisted template scores.
	InsertScoreSnapshot(ctx context.Context, item *models.ScoreSnapshot) error
	ListScoreSnapshots(ctx context.Context, since *time.Time) ([]models.ScoreSnapshot, error)
	UpsertTemplateScore(ctx context.Context, item *models.TemplateScore) error
	GetTemplateScoreByTemplateID(ctx context.Context, templateID uint64) (*models.TemplateScore, error)
	ListTemplateScores(ctx context.Context) ([]models.TemplateScore, error)

	// System settings (feature switches + scoring knobs).
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettingsByKeys(ctx context.Context, keys []string) ([]models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}
