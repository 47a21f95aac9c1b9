package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"stratcraft/internal/models"
	"stratcraft/internal/repository"
)

const (
	FeatureScoreRefresh = "feature.score_refresh"
	FeatureParamRanking = "feature.param_ranking"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureScoreRefresh: true,
		FeatureParamRanking: true,
	}
}

type SystemSettingsService struct {
	Repo repository.Repository
}

func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Values implements the scoring engine's settings lookup: raw string values
// per key, nil for keys that are not set. A DB error propagates so the
// scoring call can fail loudly instead of silently using defaults.
func (s *SystemSettingsService) Values(ctx context.Context, keys []string) (map[string]*string, error) {
	out := make(map[string]*string, len(keys))
	if s == nil || s.Repo == nil || len(keys) == 0 {
		return out, nil
	}
	items, err := s.Repo.ListSystemSettingsByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i := range items {
		out[items[i].Key] = rawSettingValue(items[i].Value)
	}
	return out, nil
}

func (s *SystemSettingsService) Set(ctx context.Context, key string, value json.RawMessage, description string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" || len(value) == 0 {
		return nil
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(value),
		Description: description,
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// rawSettingValue unwraps a JSON column into the plain string form the
// scoring lookup expects: "0.2" and 0.2 both come back as "0.2".
func rawSettingValue(v datatypes.JSON) *string {
	if len(v) == 0 {
		return nil
	}
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return &str
	}
	out := strings.TrimSpace(string(v))
	if out == "" || out == "null" {
		return nil
	}
	return &out
}
