package service

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"stratcraft/internal/models"
	"stratcraft/internal/scoring"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func backtestRow(id, templateID uint64, params string, sharpe, calmar, ret float64, trades int) models.BacktestResult {
	return models.BacktestResult{
		ID:          id,
		TemplateID:  templateID,
		Ticker:      "BTCUSDT",
		Params:      datatypes.JSON([]byte(params)),
		Sharpe:      fptr(sharpe),
		Calmar:      fptr(calmar),
		TotalReturn: fptr(ret),
		TotalTrades: iptr(trades),
	}
}

func TestParamRank_RanksAndExplainsExclusions(t *testing.T) {
	repo := newStubRepo()
	repo.backtests = []models.BacktestResult{
		backtestRow(1, 7, `{"p": 10}`, 1.0, 1.0, 0.4, 50),
		backtestRow(2, 7, `{"p": 10.4}`, 1.2, 1.1, 0.5, 50),
		backtestRow(3, 7, `{"p": 10.8}`, 0.8, 0.9, 0.3, 5),
		backtestRow(4, 99, `{"p": 10}`, 1.0, 1.0, 0.4, 50),
	}

	svc := &ParamRankService{Repo: repo, MaxCandidates: 100}
	out, err := svc.Rank(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.Total != 3 {
		t.Fatalf("total=%d want=3 (other template's rows excluded)", out.Total)
	}
	if out.Eligible != 2 || len(out.Entries) != 2 {
		t.Fatalf("eligible=%d entries=%d want=2", out.Eligible, len(out.Entries))
	}
	if len(out.Excluded) != 1 || out.Excluded[0].ResultID != 3 {
		t.Fatalf("excluded=%v want result 3", out.Excluded)
	}
	if out.Excluded[0].Reason != string(scoring.ReasonInsufficientTrades) {
		t.Fatalf("reason=%s want=insufficient_trades", out.Excluded[0].Reason)
	}
	for _, e := range out.Entries {
		if e.Score100 < 0 || e.Score100 > 100 {
			t.Fatalf("score100=%d out of range", e.Score100)
		}
		if e.Ticker != "BTCUSDT" {
			t.Fatalf("ticker=%s want display fields joined back", e.Ticker)
		}
	}
}

func TestParamRank_LimitTruncatesEntries(t *testing.T) {
	repo := newStubRepo()
	repo.backtests = []models.BacktestResult{
		backtestRow(1, 7, `{"p": 10}`, 1.0, 1.0, 0.4, 50),
		backtestRow(2, 7, `{"p": 10.2}`, 1.2, 1.1, 0.5, 50),
		backtestRow(3, 7, `{"p": 10.4}`, 1.4, 1.2, 0.6, 50),
	}
	svc := &ParamRankService{Repo: repo, MaxCandidates: 100}
	out, err := svc.Rank(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out.Entries) != 1 {
		t.Fatalf("entries=%d want=1", len(out.Entries))
	}
	if out.Eligible != 3 {
		t.Fatalf("eligible=%d want=3 (limit trims output, not scoring)", out.Eligible)
	}
}

func TestParamRank_SettingsKnobFromStore(t *testing.T) {
	repo := newStubRepo()
	repo.backtests = []models.BacktestResult{
		backtestRow(1, 7, `{"p": 10}`, 1.0, 1.0, 0.4, 30),
	}
	// Store a min-trades knob above the row's trade count.
	repo.settings[scoring.KeyParamMinTrades] = models.SystemSetting{
		Key:   scoring.KeyParamMinTrades,
		Value: datatypes.JSON([]byte(`40`)),
	}
	svc := &ParamRankService{
		Repo:     repo,
		Settings: &SystemSettingsService{Repo: repo},
	}
	out, err := svc.Rank(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.Eligible != 0 || len(out.Excluded) != 1 {
		t.Fatalf("eligible=%d excluded=%d want knob to gate the row", out.Eligible, len(out.Excluded))
	}
}

func TestParamRank_NilServiceIsSafe(t *testing.T) {
	var svc *ParamRankService
	out, err := svc.Rank(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.TemplateID != 7 || len(out.Entries) != 0 {
		t.Fatalf("out=%+v want empty ranking", out)
	}
}
