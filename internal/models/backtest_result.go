package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BacktestResult is one cached backtest outcome for a template: the candidate
// parameter set plus its performance metrics. Metric columns are nullable —
// older cache rows predate some metrics — and the Verify* columns come from
// an optional out-of-sample re-run.
type BacktestResult struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	TemplateID uint64 `gorm:"not null;index:idx_backtest_template"`
	Ticker     string `gorm:"type:varchar(20);index"`

	Params datatypes.JSON `gorm:"type:jsonb;not null"`

	Sharpe           *float64
	Calmar           *float64
	TotalReturn      *float64
	CAGR             *float64
	MaxDrawdown      *float64
	MaxDrawdownRatio *float64
	WinRate          *float64
	TotalTrades      *int

	VerifySharpe           *float64
	VerifyCalmar           *float64
	VerifyTotalReturn      *float64
	VerifyCAGR             *float64
	VerifyMaxDrawdownRatio *float64

	InitialCapital decimal.Decimal `gorm:"type:numeric(20,8)"`
	FinalBalance   decimal.Decimal `gorm:"type:numeric(20,8)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (BacktestResult) TableName() string {
	return "backtest_results"
}
