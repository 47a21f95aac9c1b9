package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// tieTolerance groups near-equal metric values into one average rank.
	tieTolerance = 1e-12
	// geoMeanEpsilon keeps a single zero percentile from wiping out the
	// geometric mean.
	geoMeanEpsilon = 1e-9
)

// Candidate is one cached backtest outcome for a template: an opaque
// parameter set plus its performance metrics. Nil metric pointers mean the
// backfill never produced the value. Verify* fields come from an optional
// out-of-sample re-run. Records are read-only to the engine.
type Candidate struct {
	ID     string
	Params map[string]any

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
}

// ReasonCode classifies why a record was excluded from scoring.
type ReasonCode string

const (
	ReasonMissingMetrics     ReasonCode = "missing_metrics"
	ReasonMissingParameters  ReasonCode = "missing_parameters"
	ReasonMissingTrades      ReasonCode = "missing_trades"
	ReasonInsufficientTrades ReasonCode = "insufficient_trades"
)

// Availability reports per-record eligibility. Excluded records are data,
// not errors: every input gets a verdict so callers can explain omissions.
type Availability struct {
	Eligible bool       `json:"eligible"`
	Reason   ReasonCode `json:"reason,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

// ParamScore is one ranked result. Candidate points back at the input record
// by identity so callers can recover display-only fields after scoring.
type ParamScore struct {
	Candidate *Candidate `json:"-"`
	Index     int        `json:"index"`
	ID        string     `json:"id,omitempty"`

	SharpePct       float64  `json:"sharpe_pct"`
	CalmarPct       float64  `json:"calmar_pct"`
	ReturnPct       float64  `json:"return_pct"`
	VerifySharpePct *float64 `json:"verify_sharpe_pct,omitempty"`
	VerifyCalmarPct *float64 `json:"verify_calmar_pct,omitempty"`
	VerifyReturnPct *float64 `json:"verify_return_pct,omitempty"`

	CoreScore      float64 `json:"core_score"`
	DDPenalty      float64 `json:"dd_penalty"`
	StabilityScore float64 `json:"stability_score"`
	FinalScore     float64 `json:"final_score"`
}

// ParamResult is the full output of one Parameter Scorer pass. Availability
// is keyed both by arena index (position in the input slice) and, where a
// record carries one, by its stable id.
type ParamResult struct {
	Scored              []ParamScore            `json:"scored"`
	AvailabilityByID    map[string]Availability `json:"availability_by_id"`
	AvailabilityByIndex map[int]Availability    `json:"availability_by_index"`
}

// ParamOptions carries the optional collaborators of a scoring call.
type ParamOptions struct {
	Lookup    Lookup
	Overrides *ParamOverrides
}

// normCandidate is the in-memory normalized form of an eligible record.
type normCandidate struct {
	idx int
	rec *Candidate
	num map[string]float64

	sharpe      float64
	calmar      float64
	totalReturn float64
	cagr        float64
	ddRatio     float64

	vSharpe  *float64
	vCalmar  *float64
	vReturn  *float64
	vDDRatio *float64

	sharpePct  float64
	calmarPct  float64
	returnPct  float64
	vSharpePct *float64
	vCalmarPct *float64
	vReturnPct *float64

	core      float64
	ddPenalty float64
	stability float64
	final     float64
}

// ScoreParams ranks all cached backtest outcomes of one template by
// coreScore * ddPenalty * stabilityScore^gamma. It is a pure function of
// (records, settings); the only error source is the settings lookup.
func ScoreParams(ctx context.Context, records []Candidate, opts ParamOptions) (*ParamResult, error) {
	settings, err := ResolveParamSettings(ctx, opts.Lookup, opts.Overrides)
	if err != nil {
		return nil, err
	}
	return scoreParamsWith(records, settings), nil
}

func scoreParamsWith(records []Candidate, settings ParamSettings) *ParamResult {
	res := &ParamResult{
		Scored:              []ParamScore{},
		AvailabilityByID:    map[string]Availability{},
		AvailabilityByIndex: map[int]Availability{},
	}

	eligible := make([]*normCandidate, 0, len(records))
	for i := range records {
		rec := &records[i]
		verdict, nc := normalize(i, rec, settings.MinTrades)
		res.AvailabilityByIndex[i] = verdict
		if rec.ID != "" {
			res.AvailabilityByID[rec.ID] = verdict
		}
		if nc != nil {
			eligible = append(eligible, nc)
		}
	}
	if len(eligible) == 0 {
		return res
	}

	assignPercentiles(eligible)

	for _, c := range eligible {
		c.core = coreScore(c)
		c.ddPenalty = ddPenalty(c, settings.DrawdownLambda)
	}

	scales := paramScales(eligible)
	neighbors := neighborSets(eligible, scales, settings.NeighborThreshold, settings.PairwiseNeighborLimit)
	assignStability(eligible, neighbors)

	for _, c := range eligible {
		c.final = c.core * c.ddPenalty * math.Pow(c.stability, settings.StabilityGamma)
	}

	sort.SliceStable(eligible, func(a, b int) bool {
		return eligible[a].final > eligible[b].final
	})

	res.Scored = make([]ParamScore, 0, len(eligible))
	for _, c := range eligible {
		res.Scored = append(res.Scored, ParamScore{
			Candidate:       c.rec,
			Index:           c.idx,
			ID:              c.rec.ID,
			SharpePct:       c.sharpePct,
			CalmarPct:       c.calmarPct,
			ReturnPct:       c.returnPct,
			VerifySharpePct: c.vSharpePct,
			VerifyCalmarPct: c.vCalmarPct,
			VerifyReturnPct: c.vReturnPct,
			CoreScore:       c.core,
			DDPenalty:       c.ddPenalty,
			StabilityScore:  c.stability,
			FinalScore:      c.final,
		})
	}
	return res
}

// normalize applies the eligibility filter to a single record, independent
// of all others, and builds its normalized form when it survives.
func normalize(idx int, rec *Candidate, minTrades int) (Availability, *normCandidate) {
	if !finitePtr(rec.Sharpe) || !finitePtr(rec.Calmar) || !finitePtr(rec.TotalReturn) {
		return Availability{
			Reason: ReasonMissingMetrics,
			Detail: "sharpe, calmar or total return missing",
		}, nil
	}
	if len(rec.Params) == 0 {
		return Availability{
			Reason: ReasonMissingParameters,
			Detail: "parameter set is empty",
		}, nil
	}
	if rec.TotalTrades == nil {
		return Availability{
			Reason: ReasonMissingTrades,
			Detail: "trade count missing",
		}, nil
	}
	if *rec.TotalTrades < minTrades {
		return Availability{
			Reason: ReasonInsufficientTrades,
			Detail: fmt.Sprintf("%d trades below minimum %d", *rec.TotalTrades, minTrades),
		}, nil
	}
	nc := &normCandidate{
		idx:         idx,
		rec:         rec,
		num:         numericParams(rec.Params),
		sharpe:      *rec.Sharpe,
		calmar:      *rec.Calmar,
		totalReturn: *rec.TotalReturn,
		vSharpe:     finiteOrNil(rec.VerifySharpe),
		vCalmar:     finiteOrNil(rec.VerifyCalmar),
		vDDRatio:    finiteOrNil(rec.VerifyMaxDrawdownRatio),
	}
	// CAGR is optional and defaults to zero rather than disqualifying.
	if finitePtr(rec.CAGR) {
		nc.cagr = *rec.CAGR
	}
	if finitePtr(rec.MaxDrawdownRatio) {
		nc.ddRatio = *rec.MaxDrawdownRatio
	}
	// The verify return percentile falls back to verify CAGR when the rerun
	// reported only annualized performance.
	if v := finiteOrNil(rec.VerifyTotalReturn); v != nil {
		nc.vReturn = v
	} else if v := finiteOrNil(rec.VerifyCAGR); v != nil {
		nc.vReturn = v
	}
	return Availability{Eligible: true}, nc
}

// assignPercentiles ranks the three training metrics over the whole eligible
// population and the three verify metrics over the sub-population that
// carries them. Candidates without a verify metric keep a nil percentile.
func assignPercentiles(cands []*normCandidate) {
	sharpe := make([]float64, len(cands))
	calmar := make([]float64, len(cands))
	ret := make([]float64, len(cands))
	for i, c := range cands {
		sharpe[i] = c.sharpe
		calmar[i] = c.calmar
		ret[i] = c.totalReturn
	}
	sp := rankPercentiles(sharpe)
	cp := rankPercentiles(calmar)
	rp := rankPercentiles(ret)
	for i, c := range cands {
		c.sharpePct = sp[i]
		c.calmarPct = cp[i]
		c.returnPct = rp[i]
	}

	assignSubsetPercentiles(cands, func(c *normCandidate) *float64 { return c.vSharpe },
		func(c *normCandidate, p *float64) { c.vSharpePct = p })
	assignSubsetPercentiles(cands, func(c *normCandidate) *float64 { return c.vCalmar },
		func(c *normCandidate, p *float64) { c.vCalmarPct = p })
	assignSubsetPercentiles(cands, func(c *normCandidate) *float64 { return c.vReturn },
		func(c *normCandidate, p *float64) { c.vReturnPct = p })
}

func assignSubsetPercentiles(cands []*normCandidate, get func(*normCandidate) *float64, set func(*normCandidate, *float64)) {
	idx := make([]int, 0, len(cands))
	vals := make([]float64, 0, len(cands))
	for i, c := range cands {
		if v := get(c); v != nil {
			idx = append(idx, i)
			vals = append(vals, *v)
		}
	}
	if len(idx) == 0 {
		return
	}
	pcts := rankPercentiles(vals)
	for k, i := range idx {
		p := pcts[k]
		set(cands[i], &p)
	}
}

// rankPercentiles assigns each value its average rank position among
// near-equal values, normalized to [0,1]. A singleton population ranks 1.
func rankPercentiles(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 1
		return out
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})
	for lo := 0; lo < n; {
		hi := lo + 1
		for hi < n && values[order[hi]]-values[order[lo]] <= tieTolerance {
			hi++
		}
		avgRank := float64(lo+hi-1) / 2
		p := clamp01(avgRank / float64(n-1))
		for k := lo; k < hi; k++ {
			out[order[k]] = p
		}
		lo = hi
	}
	return out
}

// coreScore blends the training geometric mean with the verify geometric
// mean when all three verify percentiles exist. Equal train and verify ranks
// make the blend a no-op; candidates without a verify run score purely on
// training percentile.
func coreScore(c *normCandidate) float64 {
	train := geoMean3(c.sharpePct, c.calmarPct, c.returnPct)
	if c.vSharpePct == nil || c.vCalmarPct == nil || c.vReturnPct == nil {
		return train
	}
	verify := geoMean3(*c.vSharpePct, *c.vCalmarPct, *c.vReturnPct)
	return math.Sqrt(train * verify)
}

func geoMean3(a, b, c float64) float64 {
	return math.Cbrt((a + geoMeanEpsilon) * (b + geoMeanEpsilon) * (c + geoMeanEpsilon))
}

// ddPenalty is the drawdown survival multiplier, blended with the verify
// drawdown the same way the core score blends.
func ddPenalty(c *normCandidate, lambda float64) float64 {
	train := math.Exp(-lambda * math.Max(0, c.ddRatio))
	if c.vDDRatio == nil {
		return train
	}
	verify := math.Exp(-lambda * math.Max(0, *c.vDDRatio))
	return math.Sqrt(train * verify)
}

// assignStability scores each candidate by the average quality of its
// parameter-space neighbors, normalized against the global quality spread.
// No neighbors means no corroboration: stability zero. A zero spread means
// risk does not differentiate candidates, so any neighborhood counts in full.
func assignStability(cands []*normCandidate, neighbors [][]int) {
	qMin := math.Inf(1)
	qMax := math.Inf(-1)
	quality := make([]float64, len(cands))
	for i, c := range cands {
		q := c.core * c.ddPenalty
		quality[i] = q
		if q < qMin {
			qMin = q
		}
		if q > qMax {
			qMax = q
		}
	}
	spread := qMax - qMin
	for i, c := range cands {
		ns := neighbors[i]
		if len(ns) == 0 {
			c.stability = 0
			continue
		}
		if spread <= 0 {
			c.stability = 1
			continue
		}
		nq := make([]float64, len(ns))
		for k, j := range ns {
			nq[k] = quality[j]
		}
		c.stability = clamp01((stat.Mean(nq, nil) - qMin) / spread)
	}
}

func finitePtr(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func finiteOrNil(v *float64) *float64 {
	if !finitePtr(v) {
		return nil
	}
	return v
}
