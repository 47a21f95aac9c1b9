package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"stratcraft/internal/models"
	"stratcraft/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface but only the pieces the scoring services
// touch hold real data.
type stubRepo struct {
	templates []models.Template
	backtests []models.BacktestResult
	snapshots []models.ScoreSnapshot

	settings map[string]models.SystemSetting

	scores map[uint64]models.TemplateScore

	listBacktestsErr error
	listSnapshotsErr error
	settingsErr      error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		settings: map[string]models.SystemSetting{},
		scores:   map[uint64]models.TemplateScore{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertTemplate(ctx context.Context, item *models.Template) error { return nil }
func (s *stubRepo) GetTemplateByID(ctx context.Context, id uint64) (*models.Template, error) {
	for i := range s.templates {
		if s.templates[i].ID == id {
			return &s.templates[i], nil
		}
	}
	return nil, nil
}
func (s *stubRepo) GetTemplateBySlug(ctx context.Context, slug string) (*models.Template, error) {
	for i := range s.templates {
		if s.templates[i].Slug == slug {
			return &s.templates[i], nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListTemplates(ctx context.Context, params repository.ListTemplatesParams) ([]models.Template, error) {
	return s.templates, nil
}
func (s *stubRepo) ListStrategiesByTemplateID(ctx context.Context, templateID uint64) ([]models.Strategy, error) {
	return nil, nil
}
func (s *stubRepo) ListStrategies(ctx context.Context) ([]models.Strategy, error) { return nil, nil }

func (s *stubRepo) InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error {
	s.backtests = append(s.backtests, *item)
	return nil
}
func (s *stubRepo) ListBacktestResultsByTemplateID(ctx context.Context, templateID uint64, limit int) ([]models.BacktestResult, error) {
	if s.listBacktestsErr != nil {
		return nil, s.listBacktestsErr
	}
	out := []models.BacktestResult{}
	for i := range s.backtests {
		if s.backtests[i].TemplateID == templateID {
			out = append(out, s.backtests[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) InsertScoreSnapshot(ctx context.Context, item *models.ScoreSnapshot) error {
	s.snapshots = append(s.snapshots, *item)
	return nil
}
func (s *stubRepo) ListScoreSnapshots(ctx context.Context, since *time.Time) ([]models.ScoreSnapshot, error) {
	if s.listSnapshotsErr != nil {
		return nil, s.listSnapshotsErr
	}
	if since == nil {
		return s.snapshots, nil
	}
	out := []models.ScoreSnapshot{}
	for i := range s.snapshots {
		if s.snapshots[i].CreatedAt != nil && s.snapshots[i].CreatedAt.Before(*since) {
			continue
		}
		out = append(out, s.snapshots[i])
	}
	return out, nil
}
func (s *stubRepo) UpsertTemplateScore(ctx context.Context, item *models.TemplateScore) error {
	s.scores[item.TemplateID] = *item
	return nil
}
func (s *stubRepo) GetTemplateScoreByTemplateID(ctx context.Context, templateID uint64) (*models.TemplateScore, error) {
	if sc, ok := s.scores[templateID]; ok {
		out := sc
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) ListTemplateScores(ctx context.Context) ([]models.TemplateScore, error) {
	out := make([]models.TemplateScore, 0, len(s.scores))
	for _, sc := range s.scores {
		out = append(out, sc)
	}
	return out, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s.settingsErr != nil {
		return nil, s.settingsErr
	}
	if item, ok := s.settings[key]; ok {
		out := item
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) ListSystemSettingsByKeys(ctx context.Context, keys []string) ([]models.SystemSetting, error) {
	if s.settingsErr != nil {
		return nil, s.settingsErr
	}
	out := []models.SystemSetting{}
	for _, key := range keys {
		if item, ok := s.settings[key]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}
func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s.settingsErr != nil {
		return s.settingsErr
	}
	s.settings[item.Key] = *item
	return nil
}
func (s *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	out := make([]models.SystemSetting, 0, len(s.settings))
	for _, item := range s.settings {
		out = append(out, item)
	}
	return out, nil
}
