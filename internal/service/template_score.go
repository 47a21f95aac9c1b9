package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"stratcraft/internal/models"
	"stratcraft/internal/repository"
	"stratcraft/internal/scoring"
)

// TemplateScoreService recomputes the 0-100 template scores from score
// snapshots and persists one TemplateScore row per template.
type TemplateScoreService struct {
	Repo         repository.Repository
	Logger       *zap.Logger
	Flags        *SystemSettingsService
	LookbackDays int
}

func (s *TemplateScoreService) Run(ctx context.Context, interval time.Duration) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && s.Logger != nil {
			s.Logger.Warn("template score refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *TemplateScoreService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureScoreRefresh, true) {
		return nil
	}

	var since *time.Time
	if s.LookbackDays > 0 {
		t := time.Now().UTC().Add(-time.Duration(s.LookbackDays) * 24 * time.Hour)
		since = &t
	}
	rows, err := s.Repo.ListScoreSnapshots(ctx, since)
	if err != nil {
		return err
	}
	templates, err := s.Repo.ListTemplates(ctx, repository.ListTemplatesParams{Limit: 10000})
	if err != nil {
		return err
	}

	snapshots := make([]scoring.Snapshot, 0, len(rows))
	for i := range rows {
		snapshots = append(snapshots, toSnapshot(&rows[i]))
	}
	verify := map[string]scoring.VerifyMetrics{}
	for i := range templates {
		if len(templates[i].VerifyMetrics) == 0 {
			continue
		}
		var vm scoring.VerifyMetrics
		if err := json.Unmarshal(templates[i].VerifyMetrics, &vm); err != nil {
			continue
		}
		verify[strconv.FormatUint(templates[i].ID, 10)] = vm
	}

	var lookup scoring.Lookup
	if s.Flags != nil {
		lookup = s.Flags.Values
	}
	res, err := scoring.ScoreTemplates(ctx, snapshots, scoring.TemplateOptions{
		Lookup:           lookup,
		VerifyByTemplate: verify,
	})
	if err != nil {
		return err
	}

	stored := 0
	for tmplID, bd := range res.Breakdowns {
		templateID, err := strconv.ParseUint(tmplID, 10, 64)
		if err != nil {
			continue
		}
		strategyID, _ := strconv.ParseUint(bd.StrategyID, 10, 64)
		raw, _ := json.Marshal(bd)
		item := &models.TemplateScore{
			TemplateID: templateID,
			StrategyID: strategyID,
			Score:      bd.Score100,
			Score01:    bd.FinalScore01,
			Breakdown:  datatypes.JSON(raw),
			UpdatedAt:  time.Now().UTC(),
		}
		if err := s.Repo.UpsertTemplateScore(ctx, item); err != nil {
			return err
		}
		stored++
	}
	if s.Logger != nil {
		s.Logger.Info("template scores refreshed",
			zap.Int("snapshots", len(rows)),
			zap.Int("templates_scored", stored),
		)
	}
	return nil
}

func toSnapshot(row *models.ScoreSnapshot) scoring.Snapshot {
	snap := scoring.Snapshot{
		TemplateID:   strconv.FormatUint(row.TemplateID, 10),
		StrategyID:   strconv.FormatUint(row.StrategyID, 10),
		PeriodMonths: row.PeriodMonths,
		PeriodDays:   row.PeriodDays,
		Scope:        scoring.Scope(row.Scope),
		CreatedAt:    row.CreatedAt,
	}
	if len(row.Performance) > 0 {
		var perf scoring.Performance
		if err := json.Unmarshal(row.Performance, &perf); err == nil {
			snap.Performance = &perf
		}
	}
	return snap
}
