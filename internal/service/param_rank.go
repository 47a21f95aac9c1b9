package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"stratcraft/internal/models"
	"stratcraft/internal/repository"
	"stratcraft/internal/scoring"
)

// ParamRankService runs the Parameter Scorer over a template's cached
// backtest results. Nothing is persisted; the ranking is recomputed per call.
type ParamRankService struct {
	Repo          repository.Repository
	Logger        *zap.Logger
	Settings      *SystemSettingsService
	MaxCandidates int
}

// RankedEntry is one row of the rendered ranking: scoring output joined back
// to the display fields of its source record.
type RankedEntry struct {
	ResultID       uint64          `json:"result_id"`
	Ticker         string          `json:"ticker,omitempty"`
	Params         datatypes.JSON  `json:"params"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalBalance   decimal.Decimal `json:"final_balance"`

	CoreScore      float64 `json:"core_score"`
	DDPenalty      float64 `json:"dd_penalty"`
	StabilityScore float64 `json:"stability_score"`
	FinalScore     float64 `json:"final_score"`
	Score100       int     `json:"score_100"`
}

// ExcludedEntry explains why a cached result did not participate.
type ExcludedEntry struct {
	ResultID uint64 `json:"result_id"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

type ParamRanking struct {
	TemplateID uint64          `json:"template_id"`
	Total      int             `json:"total"`
	Eligible   int             `json:"eligible"`
	Entries    []RankedEntry   `json:"entries"`
	Excluded   []ExcludedEntry `json:"excluded"`
}

func (s *ParamRankService) Rank(ctx context.Context, templateID uint64, limit int) (*ParamRanking, error) {
	if s == nil || s.Repo == nil {
		return &ParamRanking{TemplateID: templateID}, nil
	}
	rows, err := s.Repo.ListBacktestResultsByTemplateID(ctx, templateID, s.MaxCandidates)
	if err != nil {
		return nil, err
	}

	records := make([]scoring.Candidate, len(rows))
	for i := range rows {
		records[i] = toCandidate(&rows[i])
	}

	var lookup scoring.Lookup
	if s.Settings != nil {
		lookup = s.Settings.Values
	}
	res, err := scoring.ScoreParams(ctx, records, scoring.ParamOptions{Lookup: lookup})
	if err != nil {
		return nil, err
	}

	out := &ParamRanking{
		TemplateID: templateID,
		Total:      len(rows),
		Eligible:   len(res.Scored),
		Entries:    []RankedEntry{},
		Excluded:   []ExcludedEntry{},
	}
	for _, score := range res.Scored {
		if limit > 0 && len(out.Entries) >= limit {
			break
		}
		row := &rows[score.Index]
		out.Entries = append(out.Entries, RankedEntry{
			ResultID:       row.ID,
			Ticker:         row.Ticker,
			Params:         row.Params,
			InitialCapital: row.InitialCapital,
			FinalBalance:   row.FinalBalance,
			CoreScore:      score.CoreScore,
			DDPenalty:      score.DDPenalty,
			StabilityScore: score.StabilityScore,
			FinalScore:     score.FinalScore,
			Score100:       displayScore(score.FinalScore),
		})
	}
	for i := range rows {
		verdict, ok := res.AvailabilityByIndex[i]
		if !ok || verdict.Eligible {
			continue
		}
		out.Excluded = append(out.Excluded, ExcludedEntry{
			ResultID: rows[i].ID,
			Reason:   string(verdict.Reason),
			Detail:   verdict.Detail,
		})
	}
	if s.Logger != nil {
		s.Logger.Debug("param ranking computed",
			zap.Uint64("template_id", templateID),
			zap.Int("total", out.Total),
			zap.Int("eligible", out.Eligible),
			zap.Int("excluded", len(out.Excluded)),
		)
	}
	return out, nil
}

func toCandidate(row *models.BacktestResult) scoring.Candidate {
	params := map[string]any{}
	if len(row.Params) > 0 {
		_ = json.Unmarshal(row.Params, &params)
	}
	return scoring.Candidate{
		ID:                     strconv.FormatUint(row.ID, 10),
		Params:                 params,
		Sharpe:                 row.Sharpe,
		Calmar:                 row.Calmar,
		TotalReturn:            row.TotalReturn,
		CAGR:                   row.CAGR,
		MaxDrawdown:            row.MaxDrawdown,
		MaxDrawdownRatio:       row.MaxDrawdownRatio,
		WinRate:                row.WinRate,
		TotalTrades:            row.TotalTrades,
		VerifySharpe:           row.VerifySharpe,
		VerifyCalmar:           row.VerifyCalmar,
		VerifyTotalReturn:      row.VerifyTotalReturn,
		VerifyCAGR:             row.VerifyCAGR,
		VerifyMaxDrawdownRatio: row.VerifyMaxDrawdownRatio,
	}
}

func displayScore(score01 float64) int {
	if score01 < 0 {
		return 0
	}
	if score01 > 1 {
		return 100
	}
	return int(score01*100 + 0.5)
}
