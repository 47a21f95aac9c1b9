package scoring

import (
	"context"
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

// cand builds an eligible candidate with one tunable parameter "p".
func cand(id string, p, sharpe, calmar, ret float64, trades int) Candidate {
	return Candidate{
		ID:          id,
		Params:      map[string]any{"p": p},
		Sharpe:      fptr(sharpe),
		Calmar:      fptr(calmar),
		TotalReturn: fptr(ret),
		TotalTrades: iptr(trades),
	}
}

func TestScoreParams_MinTradesGate(t *testing.T) {
	records := []Candidate{
		cand("a", 10, 1.0, 1.0, 0.5, 19),
		cand("b", 11, 1.0, 1.0, 0.5, 20),
	}
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	av := res.AvailabilityByID["a"]
	if av.Eligible || av.Reason != ReasonInsufficientTrades {
		t.Fatalf("a availability=%+v want insufficient_trades", av)
	}
	if !res.AvailabilityByID["b"].Eligible {
		t.Fatalf("b availability=%+v want eligible", res.AvailabilityByID["b"])
	}
	if len(res.Scored) != 1 || res.Scored[0].ID != "b" {
		t.Fatalf("scored=%v want only b", res.Scored)
	}
}

func TestScoreParams_ExclusionReasons(t *testing.T) {
	records := []Candidate{
		{ID: "no-metrics", Params: map[string]any{"p": 1.0}, TotalTrades: iptr(50)},
		{ID: "nan-metric", Params: map[string]any{"p": 1.0}, Sharpe: fptr(math.NaN()), Calmar: fptr(1), TotalReturn: fptr(1), TotalTrades: iptr(50)},
		{ID: "no-params", Sharpe: fptr(1), Calmar: fptr(1), TotalReturn: fptr(1), TotalTrades: iptr(50)},
		{ID: "no-trades", Params: map[string]any{"p": 1.0}, Sharpe: fptr(1), Calmar: fptr(1), TotalReturn: fptr(1)},
	}
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := map[string]ReasonCode{
		"no-metrics": ReasonMissingMetrics,
		"nan-metric": ReasonMissingMetrics,
		"no-params":  ReasonMissingParameters,
		"no-trades":  ReasonMissingTrades,
	}
	for id, reason := range want {
		av := res.AvailabilityByID[id]
		if av.Eligible || av.Reason != reason {
			t.Fatalf("%s availability=%+v want reason=%s", id, av, reason)
		}
	}
	if len(res.Scored) != 0 {
		t.Fatalf("scored=%d want=0", len(res.Scored))
	}
	if len(res.AvailabilityByIndex) != 4 {
		t.Fatalf("index verdicts=%d want=4", len(res.AvailabilityByIndex))
	}
}

func TestRankPercentiles_TiesAndBounds(t *testing.T) {
	got := rankPercentiles([]float64{1, 2, 2, 3})
	// Ranks 0, (1+2)/2, (1+2)/2, 3 over n-1=3.
	want := []float64{0, 0.5, 0.5, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("pct[%d]=%v want=%v", i, got[i], want[i])
		}
	}
}

func TestRankPercentiles_Singleton(t *testing.T) {
	got := rankPercentiles([]float64{42})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got=%v want=[1]", got)
	}
}

func TestScoreParams_VerifyBlendNoOpOnEqualRanks(t *testing.T) {
	base := []Candidate{
		cand("a", 10, 2.0, 1.5, 0.8, 50),
		cand("b", 10.2, 1.0, 1.0, 0.4, 50),
		cand("c", 10.4, 0.5, 0.8, 0.2, 50),
	}
	withVerify := make([]Candidate, len(base))
	copy(withVerify, base)
	for i := range withVerify {
		withVerify[i].VerifySharpe = withVerify[i].Sharpe
		withVerify[i].VerifyCalmar = withVerify[i].Calmar
		withVerify[i].VerifyTotalReturn = withVerify[i].TotalReturn
	}

	plain, err := ScoreParams(context.Background(), base, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	blended, err := ScoreParams(context.Background(), withVerify, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	byID := map[string]float64{}
	for _, s := range plain.Scored {
		byID[s.ID] = s.CoreScore
	}
	for _, s := range blended.Scored {
		if math.Abs(s.CoreScore-byID[s.ID]) > 1e-9 {
			t.Fatalf("%s core=%v want=%v (blend with identical verify must be a no-op)", s.ID, s.CoreScore, byID[s.ID])
		}
	}
}

func TestScoreParams_SingleCandidateHasNoStability(t *testing.T) {
	res, err := ScoreParams(context.Background(), []Candidate{cand("only", 10, 1, 1, 0.5, 50)}, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Scored) != 1 {
		t.Fatalf("scored=%d want=1", len(res.Scored))
	}
	s := res.Scored[0]
	if s.CoreScore <= 0 {
		t.Fatalf("core=%v want>0", s.CoreScore)
	}
	if s.StabilityScore != 0 || s.FinalScore != 0 {
		t.Fatalf("stability=%v final=%v want both 0 without neighbors", s.StabilityScore, s.FinalScore)
	}
}

func TestScoreParams_IsolatedOutlierDemoted(t *testing.T) {
	// The best raw metrics sit alone in parameter space; the mediocre pair
	// corroborate each other and must outrank it.
	records := []Candidate{
		cand("near-1", 10, 1.0, 1.0, 0.4, 50),
		cand("near-2", 10.5, 1.1, 1.05, 0.45, 50),
		cand("lonely", 90, 3.0, 3.0, 2.0, 50),
	}
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Scored) != 3 {
		t.Fatalf("scored=%d want=3", len(res.Scored))
	}
	finals := map[string]ParamScore{}
	for _, s := range res.Scored {
		finals[s.ID] = s
	}
	if finals["lonely"].StabilityScore != 0 || finals["lonely"].FinalScore != 0 {
		t.Fatalf("lonely stability=%v final=%v want both 0", finals["lonely"].StabilityScore, finals["lonely"].FinalScore)
	}
	if finals["near-1"].FinalScore <= 0 {
		t.Fatalf("near-1 final=%v want>0", finals["near-1"].FinalScore)
	}
	if res.Scored[0].ID != "near-1" {
		t.Fatalf("first=%s want=near-1", res.Scored[0].ID)
	}
}

func TestScoreParams_ZeroQualitySpread(t *testing.T) {
	// Identical metrics everywhere: quality cannot differentiate, so any
	// candidate with at least one neighbor gets full stability.
	records := []Candidate{
		cand("a", 10, 1, 1, 0.5, 50),
		cand("b", 10.05, 1, 1, 0.5, 50),
		cand("c", 90, 1, 1, 0.5, 50),
	}
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for _, s := range res.Scored {
		switch s.ID {
		case "a", "b":
			if s.StabilityScore != 1 {
				t.Fatalf("%s stability=%v want=1", s.ID, s.StabilityScore)
			}
		case "c":
			if s.StabilityScore != 0 {
				t.Fatalf("c stability=%v want=0", s.StabilityScore)
			}
		}
	}
}

func TestScoreParams_BoundsAndOrdering(t *testing.T) {
	records := []Candidate{
		cand("a", 1, 0.5, 0.4, 0.1, 30),
		cand("b", 1.05, 1.5, 1.2, 0.6, 40),
		cand("c", 1.1, 2.5, 2.0, 1.1, 60),
		cand("d", 1.15, -0.5, -0.2, -0.1, 25),
	}
	records[1].MaxDrawdownRatio = fptr(0.3)
	records[2].MaxDrawdownRatio = fptr(0.1)
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	prev := math.Inf(1)
	for _, s := range res.Scored {
		for name, v := range map[string]float64{
			"sharpe_pct": s.SharpePct, "calmar_pct": s.CalmarPct, "return_pct": s.ReturnPct,
			"dd_penalty": s.DDPenalty, "stability": s.StabilityScore, "final": s.FinalScore,
		} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("%s %s=%v out of [0,1]", s.ID, name, v)
			}
		}
		if s.FinalScore > prev {
			t.Fatalf("ordering broken: %v after %v", s.FinalScore, prev)
		}
		prev = s.FinalScore
	}
}

func TestScoreParams_IgnoredKeysDoNotSeparateNeighbors(t *testing.T) {
	mk := func(id string, p, capital float64) Candidate {
		c := cand(id, p, 1, 1, 0.5, 50)
		c.Params["capital"] = capital
		c.Params["ticker"] = "BTCUSDT"
		return c
	}
	records := []Candidate{
		mk("a", 10, 1000),
		mk("b", 10.3, 5e6),
		mk("c", 80, 1000),
	}
	res, err := ScoreParams(context.Background(), records, ParamOptions{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	byID := map[string]ParamScore{}
	for _, s := range res.Scored {
		byID[s.ID] = s
	}
	// a and b are close on "p"; the capital gap must not break the pair.
	if byID["a"].StabilityScore == 0 || byID["b"].StabilityScore == 0 {
		t.Fatalf("a=%v b=%v want nonzero stability for the close pair", byID["a"].StabilityScore, byID["b"].StabilityScore)
	}
	if byID["c"].StabilityScore != 0 {
		t.Fatalf("c stability=%v want=0", byID["c"].StabilityScore)
	}
}

func TestParamDistance_MissingKeyPenalty(t *testing.T) {
	scales := map[string]float64{"p": 1, "q": 1}
	a := map[string]float64{"p": 1, "q": 2}
	b := map[string]float64{"p": 1}
	// One matching key at zero distance plus one one-sided penalty.
	got := paramDistance(a, b, scales)
	want := math.Sqrt((0 + missingKeyPenalty) / 2)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("distance=%v want=%v", got, want)
	}
}

func TestParamDistance_NoSharedScaledKeys(t *testing.T) {
	scales := map[string]float64{"p": 1}
	if d := paramDistance(map[string]float64{}, map[string]float64{}, scales); !math.IsInf(d, 1) {
		t.Fatalf("distance=%v want=+Inf", d)
	}
}

func TestBucketedNeighbors_MatchesExactSearch(t *testing.T) {
	records := make([]Candidate, 0, 40)
	for i := 0; i < 40; i++ {
		p := float64(i%8)*0.07 + float64(i/8)*3.1
		records = append(records, cand("", p, 1+0.01*float64(i), 1, 0.5, 50))
	}

	exactLimit := len(records) + 1
	bucketLimit := 0
	exact := scoreParamsWith(records, ParamSettings{
		MinTrades: 0, DrawdownLambda: 3.5, NeighborThreshold: 0.15,
		StabilityGamma: 2, PairwiseNeighborLimit: exactLimit,
	})
	bucketed := scoreParamsWith(records, ParamSettings{
		MinTrades: 0, DrawdownLambda: 3.5, NeighborThreshold: 0.15,
		StabilityGamma: 2, PairwiseNeighborLimit: bucketLimit,
	})

	if len(exact.Scored) != len(bucketed.Scored) {
		t.Fatalf("scored exact=%d bucketed=%d", len(exact.Scored), len(bucketed.Scored))
	}
	exactByIdx := map[int]float64{}
	for _, s := range exact.Scored {
		exactByIdx[s.Index] = s.FinalScore
	}
	for _, s := range bucketed.Scored {
		if math.Abs(s.FinalScore-exactByIdx[s.Index]) > 1e-9 {
			t.Fatalf("idx=%d bucketed=%v exact=%v", s.Index, s.FinalScore, exactByIdx[s.Index])
		}
	}
}
