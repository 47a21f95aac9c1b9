package scoring

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Scope labels which evaluation window a snapshot measured.
type Scope string

const (
	ScopeTraining   Scope = "training"
	ScopeValidation Scope = "validation"
)

const (
	// consistencyEpsilon treats a pair of ~zero CAGRs as perfectly consistent.
	consistencyEpsilon = 1e-9
	// Verification component shapes. Fixed numerical choices, not knobs.
	verifySharpeScale      = 1.0
	verifyCalmarScale      = 1.0
	verifyNegCagrSteepness = 3.0
)

// Performance is the slice of backtest output the Template Scorer consumes.
type Performance struct {
	CAGR             float64 `json:"cagr"`
	MaxDrawdownRatio float64 `json:"max_drawdown_ratio"`
	TotalTrades      int     `json:"total_trades"`
}

// Snapshot is one recorded evaluation of a (template, strategy, period, scope)
// combination. Performance and CreatedAt may be absent.
type Snapshot struct {
	TemplateID   string
	StrategyID   string
	PeriodMonths *int
	PeriodDays   *int
	Scope        Scope
	Performance  *Performance
	CreatedAt    *time.Time
}

// VerifyMetrics are the optional out-of-sample re-run metrics per template.
type VerifyMetrics struct {
	Sharpe        *float64 `json:"sharpe,omitempty"`
	Calmar        *float64 `json:"calmar,omitempty"`
	CAGR          *float64 `json:"cagr,omitempty"`
	DrawdownRatio *float64 `json:"drawdown_ratio,omitempty"`
}

func (v VerifyMetrics) empty() bool {
	return v.Sharpe == nil && v.Calmar == nil && v.CAGR == nil && v.DrawdownRatio == nil
}

// PeriodDetail explains one period's contribution to a strategy score.
type PeriodDetail struct {
	PeriodMonths int `json:"period_months,omitempty"`
	PeriodDays   int `json:"period_days,omitempty"`

	TrainingCAGR            float64 `json:"training_cagr"`
	ValidationCAGR          float64 `json:"validation_cagr"`
	ValidationDrawdownRatio float64 `json:"validation_drawdown_ratio"`
	TradesPerYear           float64 `json:"trades_per_year"`
	AgeDays                 float64 `json:"age_days"`

	ReturnScore      float64 `json:"return_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	RiskScore        float64 `json:"risk_score"`
	LiquidityScore   float64 `json:"liquidity_score"`
	NegativePenalty  float64 `json:"negative_penalty"`
	PeriodScore      float64 `json:"period_score"`
	Weight           float64 `json:"weight"`
}

// TemplateBreakdown is the retained detail of a template's winning strategy.
type TemplateBreakdown struct {
	TemplateID string `json:"template_id"`
	StrategyID string `json:"strategy_id"`

	BaseScore01  float64 `json:"base_score_01"`
	FinalScore01 float64 `json:"final_score_01"`
	Score100     int     `json:"score_100"`

	ReturnAvg      float64 `json:"return_avg"`
	ConsistencyAvg float64 `json:"consistency_avg"`
	RiskAvg        float64 `json:"risk_avg"`
	LiquidityAvg   float64 `json:"liquidity_avg"`

	VerifyMultiplier *float64       `json:"verify_multiplier,omitempty"`
	Periods          []PeriodDetail `json:"periods"`
}

// TemplateResult maps every scored template to its 0-1 final score and the
// breakdown behind it. Recomputed fully on every call.
type TemplateResult struct {
	Scores     map[string]float64            `json:"scores"`
	Breakdowns map[string]*TemplateBreakdown `json:"breakdowns"`
}

// TemplateOptions carries the optional collaborators of a scoring call.
type TemplateOptions struct {
	Lookup           Lookup
	Overrides        *TemplateOverrides
	VerifyByTemplate map[string]VerifyMetrics
	// Now anchors recency weighting; the zero value means time.Now().UTC().
	Now time.Time
}

// ScoreTemplates aggregates paired training/validation snapshots into a
// single 0-1 score per template. A period only contributes when both scopes
// carry performance; a template is only as good as its best strategy.
func ScoreTemplates(ctx context.Context, snapshots []Snapshot, opts TemplateOptions) (*TemplateResult, error) {
	settings, err := ResolveTemplateSettings(ctx, opts.Lookup, opts.Overrides)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return scoreTemplatesWith(snapshots, opts.VerifyByTemplate, settings, now), nil
}

type periodPair struct {
	months   *int
	days     *int
	training *Snapshot
	valid    *Snapshot
}

func scoreTemplatesWith(snapshots []Snapshot, verify map[string]VerifyMetrics, settings TemplateSettings, now time.Time) *TemplateResult {
	res := &TemplateResult{
		Scores:     map[string]float64{},
		Breakdowns: map[string]*TemplateBreakdown{},
	}

	// Group by template, strategy, period — in input order so the winning
	// strategy on a tie is deterministic.
	type strategyGroup struct {
		id        string
		pairOrder []string
		pairs     map[string]*periodPair
	}
	type templateGroup struct {
		id         string
		stratOrder []string
		strats     map[string]*strategyGroup
	}
	tmplOrder := []string{}
	tmpls := map[string]*templateGroup{}
	for i := range snapshots {
		snap := &snapshots[i]
		if snap.TemplateID == "" || snap.StrategyID == "" {
			continue
		}
		tg, ok := tmpls[snap.TemplateID]
		if !ok {
			tg = &templateGroup{id: snap.TemplateID, strats: map[string]*strategyGroup{}}
			tmpls[snap.TemplateID] = tg
			tmplOrder = append(tmplOrder, snap.TemplateID)
		}
		sg, ok := tg.strats[snap.StrategyID]
		if !ok {
			sg = &strategyGroup{id: snap.StrategyID, pairs: map[string]*periodPair{}}
			tg.strats[snap.StrategyID] = sg
			tg.stratOrder = append(tg.stratOrder, snap.StrategyID)
		}
		key := periodKey(snap.PeriodMonths, snap.PeriodDays)
		pair, ok := sg.pairs[key]
		if !ok {
			pair = &periodPair{months: snap.PeriodMonths, days: snap.PeriodDays}
			sg.pairs[key] = pair
			sg.pairOrder = append(sg.pairOrder, key)
		}
		switch snap.Scope {
		case ScopeTraining:
			if pair.training == nil && snap.Performance != nil {
				pair.training = snap
			}
		case ScopeValidation:
			if pair.valid == nil && snap.Performance != nil {
				pair.valid = snap
			}
		}
	}

	for _, tmplID := range tmplOrder {
		tg := tmpls[tmplID]
		var best *TemplateBreakdown
		for _, stratID := range tg.stratOrder {
			sg := tg.strats[stratID]
			bd := scoreStrategy(tmplID, stratID, sg.pairOrder, sg.pairs, settings, now)
			if bd == nil {
				continue
			}
			if best == nil || bd.BaseScore01 > best.BaseScore01 {
				best = bd
			}
		}
		if best == nil {
			continue
		}
		best.FinalScore01 = best.BaseScore01
		if vm, ok := verify[tmplID]; ok && !vm.empty() {
			if mult := verifyMultiplier(vm, settings); mult != nil {
				best.VerifyMultiplier = mult
				best.FinalScore01 = clamp01(best.BaseScore01 * *mult)
			}
		}
		best.Score100 = int(math.Round(clamp01(best.FinalScore01) * 100))
		res.Scores[tmplID] = best.FinalScore01
		res.Breakdowns[tmplID] = best
	}
	return res
}

func periodKey(months, days *int) string {
	if months != nil {
		return "m" + strconv.Itoa(*months)
	}
	if days != nil {
		return "d" + strconv.Itoa(*days)
	}
	return "none"
}

// scoreStrategy computes the weighted-average period score of one strategy.
// Returns nil when no period has both a training and a validation snapshot.
func scoreStrategy(tmplID, stratID string, order []string, pairs map[string]*periodPair, settings TemplateSettings, now time.Time) *TemplateBreakdown {
	bd := &TemplateBreakdown{TemplateID: tmplID, StrategyID: stratID}
	var wSum, scoreSum, retSum, consSum, riskSum, liqSum float64
	for _, key := range order {
		pair := pairs[key]
		if pair.training == nil || pair.valid == nil {
			continue
		}
		d := scorePeriod(pair, settings, now)
		bd.Periods = append(bd.Periods, d)
		wSum += d.Weight
		scoreSum += d.Weight * d.PeriodScore
		retSum += d.Weight * d.ReturnScore
		consSum += d.Weight * d.ConsistencyScore
		riskSum += d.Weight * d.RiskScore
		liqSum += d.Weight * d.LiquidityScore
	}
	if wSum <= 0 {
		return nil
	}
	bd.BaseScore01 = clamp01(scoreSum / wSum)
	bd.ReturnAvg = clamp01(retSum / wSum)
	bd.ConsistencyAvg = clamp01(consSum / wSum)
	bd.RiskAvg = clamp01(riskSum / wSum)
	bd.LiquidityAvg = clamp01(liqSum / wSum)
	return bd
}

func scorePeriod(pair *periodPair, settings TemplateSettings, now time.Time) PeriodDetail {
	trainCAGR := pair.training.Performance.CAGR
	validCAGR := pair.valid.Performance.CAGR
	validDD := math.Max(0, pair.valid.Performance.MaxDrawdownRatio)

	d := PeriodDetail{
		TrainingCAGR:            trainCAGR,
		ValidationCAGR:          validCAGR,
		ValidationDrawdownRatio: validDD,
	}
	if pair.months != nil {
		d.PeriodMonths = *pair.months
	}
	if pair.days != nil {
		d.PeriodDays = *pair.days
	}

	if validCAGR >= 0 {
		d.ReturnScore = clamp01(1 - math.Exp(-validCAGR/settings.ReturnScale))
	}

	// Penalize validation underperforming training, never the reverse.
	gap := math.Max(0, trainCAGR-validCAGR)
	den := math.Abs(trainCAGR) + math.Abs(validCAGR)
	d.ConsistencyScore = 1
	if den > consistencyEpsilon {
		d.ConsistencyScore = 1 - clamp01(gap/den)
	}

	d.RiskScore = math.Exp(-settings.DrawdownLambda * validDD)

	years := periodYears(pair.months, pair.days)
	if years > 0 {
		d.TradesPerYear = float64(pair.valid.Performance.TotalTrades) / years
	}
	d.LiquidityScore = (1 - settings.TradeWeight) +
		settings.TradeWeight*(1-math.Exp(-d.TradesPerYear/settings.TradeTarget))

	// Losing periods already score zero on return; the extra haircut below
	// steepens the falloff on top of that.
	d.NegativePenalty = 1
	if validCAGR < 0 {
		d.NegativePenalty = math.Exp(-settings.NegativePenaltyStrength * math.Abs(validCAGR))
	}

	d.PeriodScore = clamp01(d.ReturnScore * d.ConsistencyScore * d.RiskScore * d.LiquidityScore * d.NegativePenalty)

	d.AgeDays = ageDays(pair, now)
	months := periodLengthMonths(pair.months, pair.days)
	recency := 0.6 + 0.4*math.Exp(-math.Ln2*d.AgeDays/settings.HalfLifeDays)
	d.Weight = math.Sqrt(math.Max(1, months)) * recency
	return d
}

func periodYears(months, days *int) float64 {
	if months != nil && *months > 0 {
		return float64(*months) / 12
	}
	if days != nil && *days > 0 {
		return float64(*days) / 365
	}
	return 0
}

func periodLengthMonths(months, days *int) float64 {
	if months != nil && *months > 0 {
		return float64(*months)
	}
	if days != nil && *days > 0 {
		return float64(*days) / 30
	}
	return 0
}

func ageDays(pair *periodPair, now time.Time) float64 {
	at := pair.valid.CreatedAt
	if at == nil {
		at = pair.training.CreatedAt
	}
	if at == nil {
		return 0
	}
	age := now.Sub(*at).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// verifyMultiplier maps the geometric mean of up to four verification
// component scores linearly into [VerifyMinMultiplier, VerifyMaxMultiplier].
// Positive verify CAGR is scored on the return scale; negative CAGR on a
// steeper penalty scale, so losses pull the multiplier down faster than
// gains push it up.
func verifyMultiplier(v VerifyMetrics, settings TemplateSettings) *float64 {
	comps := make([]float64, 0, 4)
	if v.Sharpe != nil {
		comps = append(comps, clamp01(1-math.Exp(-math.Max(0, *v.Sharpe)/verifySharpeScale)))
	}
	if v.Calmar != nil {
		comps = append(comps, clamp01(1-math.Exp(-math.Max(0, *v.Calmar)/verifyCalmarScale)))
	}
	if v.CAGR != nil {
		cagr := *v.CAGR
		if cagr >= 0 {
			comps = append(comps, 0.5+0.5*(1-math.Exp(-cagr/settings.ReturnScale)))
		} else {
			comps = append(comps, 0.5*math.Exp(-verifyNegCagrSteepness*math.Abs(cagr)))
		}
	}
	if v.DrawdownRatio != nil {
		comps = append(comps, math.Exp(-settings.DrawdownLambda*math.Max(0, *v.DrawdownRatio)))
	}
	if len(comps) == 0 {
		return nil
	}
	prod := 1.0
	for _, c := range comps {
		prod *= c + geoMeanEpsilon
	}
	g := clamp01(math.Pow(prod, 1/float64(len(comps))))
	mult := settings.VerifyMinMultiplier + (settings.VerifyMaxMultiplier-settings.VerifyMinMultiplier)*g
	return &mult
}
