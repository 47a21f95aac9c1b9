package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stratcraft/internal/models"
	"stratcraft/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Gallery ----------------------------------------------------------------

func (s *Store) UpsertTemplate(ctx context.Context, item *models.Template) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Slug = strings.TrimSpace(item.Slug)
	if item.Slug == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"description",
			"category",
			"enabled",
			"default_params",
			"verify_metrics",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTemplateByID(ctx context.Context, id uint64) (*models.Template, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Template
	err := s.db.WithContext(ctx).Model(&models.Template{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTemplateBySlug(ctx context.Context, slug string) (*models.Template, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	var item models.Template
	err := s.db.WithContext(ctx).Model(&models.Template{}).Where("slug = ?", slug).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTemplates(ctx context.Context, params repository.ListTemplatesParams) ([]models.Template, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Template{})
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.Enabled != nil {
		query = query.Where("enabled = ?", *params.Enabled)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Template
	if err := query.Order("slug asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStrategiesByTemplateID(ctx context.Context, templateID uint64) ([]models.Strategy, error) {
	if s == nil || s.db == nil || templateID == 0 {
		return nil, nil
	}
	var items []models.Strategy
	if err := s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("template_id = ?", templateID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStrategies(ctx context.Context) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Strategy
	if err := s.db.WithContext(ctx).Model(&models.Strategy{}).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Backtest cache ---------------------------------------------------------

func (s *Store) InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListBacktestResultsByTemplateID(ctx context.Context, templateID uint64, limit int) ([]models.BacktestResult, error) {
	if s == nil || s.db == nil || templateID == 0 {
		return nil, nil
	}
	limit = normalizeLimit(limit, 5000)
	var items []models.BacktestResult
	if err := s.db.WithContext(ctx).
		Model(&models.BacktestResult{}).
		Where("template_id = ?", templateID).
		Order("id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Score snapshots and template scores ------------------------------------

func (s *Store) InsertScoreSnapshot(ctx context.Context, item *models.ScoreSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListScoreSnapshots(ctx context.Context, since *time.Time) ([]models.ScoreSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ScoreSnapshot{})
	if since != nil && !since.IsZero() {
		query = query.Where("created_at >= ?", since.UTC())
	}
	var items []models.ScoreSnapshot
	if err := query.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertTemplateScore(ctx context.Context, item *models.TemplateScore) error {
	if s == nil || s.db == nil || item == nil || item.TemplateID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "template_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"strategy_id",
			"score",
			"score01",
			"breakdown",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTemplateScoreByTemplateID(ctx context.Context, templateID uint64) (*models.TemplateScore, error) {
	if s == nil || s.db == nil || templateID == 0 {
		return nil, nil
	}
	var item models.TemplateScore
	err := s.db.WithContext(ctx).Model(&models.TemplateScore{}).Where("template_id = ?", templateID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTemplateScores(ctx context.Context) ([]models.TemplateScore, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TemplateScore
	if err := s.db.WithContext(ctx).
		Model(&models.TemplateScore{}).
		Order("score desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings --------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettingsByKeys(ctx context.Context, keys []string) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	keys = cleanStrings(keys)
	if len(keys) == 0 {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).
		Model(&models.SystemSetting{}).
		Where("key IN ?", keys).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Order("key asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
