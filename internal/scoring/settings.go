package scoring

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// Lookup fetches raw setting values for a list of keys from an external
// key-value source. A nil value (or a missing key) means "not set"; values
// that fail to parse fall back to the compiled-in default.
type Lookup func(ctx context.Context, keys []string) (map[string]*string, error)

// Setting keys recognized by the two scorers.
const (
	KeyParamMinTrades         = "scoring.param.min_trades"
	KeyParamDrawdownLambda    = "scoring.param.drawdown_lambda"
	KeyParamNeighborThreshold = "scoring.param.neighbor_threshold"
	KeyParamStabilityGamma    = "scoring.param.stability_gamma"
	KeyParamPairwiseLimit     = "scoring.param.pairwise_neighbor_limit"

	KeyTemplateReturnScale      = "scoring.template.return_scale"
	KeyTemplateDrawdownLambda   = "scoring.template.drawdown_lambda"
	KeyTemplateTradeTarget      = "scoring.template.trade_target"
	KeyTemplateTradeWeight      = "scoring.template.trade_weight"
	KeyTemplateNegativeStrength = "scoring.template.negative_penalty_strength"
	KeyTemplateHalfLifeDays     = "scoring.template.half_life_days"
	KeyTemplateVerifyMinMult    = "scoring.template.verify_min_multiplier"
	KeyTemplateVerifyMaxMult    = "scoring.template.verify_max_multiplier"
)

// ParamSettings are the knobs of the Parameter Scorer. Immutable once
// resolved for a single scoring call.
type ParamSettings struct {
	MinTrades             int
	DrawdownLambda        float64
	NeighborThreshold     float64
	StabilityGamma        float64
	PairwiseNeighborLimit int
}

// ParamOverrides is a partial caller-side override of ParamSettings.
type ParamOverrides struct {
	MinTrades             *int
	DrawdownLambda        *float64
	NeighborThreshold     *float64
	StabilityGamma        *float64
	PairwiseNeighborLimit *int
}

func DefaultParamSettings() ParamSettings {
	return ParamSettings{
		MinTrades:             20,
		DrawdownLambda:        3.5,
		NeighborThreshold:     0.15,
		StabilityGamma:        2,
		PairwiseNeighborLimit: 1500,
	}
}

// TemplateSettings are the knobs of the Template Scorer.
type TemplateSettings struct {
	ReturnScale             float64
	DrawdownLambda          float64
	TradeTarget             float64
	TradeWeight             float64
	NegativePenaltyStrength float64
	HalfLifeDays            float64
	VerifyMinMultiplier     float64
	VerifyMaxMultiplier     float64
}

// TemplateOverrides is a partial caller-side override of TemplateSettings.
type TemplateOverrides struct {
	ReturnScale             *float64
	DrawdownLambda          *float64
	TradeTarget             *float64
	TradeWeight             *float64
	NegativePenaltyStrength *float64
	HalfLifeDays            *float64
	VerifyMinMultiplier     *float64
	VerifyMaxMultiplier     *float64
}

func DefaultTemplateSettings() TemplateSettings {
	return TemplateSettings{
		ReturnScale:             0.20,
		DrawdownLambda:          2.5,
		TradeTarget:             200,
		TradeWeight:             0.25,
		NegativePenaltyStrength: 2.0,
		HalfLifeDays:            365,
		VerifyMinMultiplier:     0.8,
		VerifyMaxMultiplier:     1.2,
	}
}

// ResolveParamSettings merges defaults <- external lookup <- caller override,
// then normalizes once. A lookup error propagates; everything else falls back.
func ResolveParamSettings(ctx context.Context, lookup Lookup, override *ParamOverrides) (ParamSettings, error) {
	s := DefaultParamSettings()
	if lookup != nil {
		vals, err := lookup(ctx, []string{
			KeyParamMinTrades,
			KeyParamDrawdownLambda,
			KeyParamNeighborThreshold,
			KeyParamStabilityGamma,
			KeyParamPairwiseLimit,
		})
		if err != nil {
			return ParamSettings{}, err
		}
		applyInt(vals, KeyParamMinTrades, &s.MinTrades)
		applyFloat(vals, KeyParamDrawdownLambda, &s.DrawdownLambda)
		applyFloat(vals, KeyParamNeighborThreshold, &s.NeighborThreshold)
		applyFloat(vals, KeyParamStabilityGamma, &s.StabilityGamma)
		applyInt(vals, KeyParamPairwiseLimit, &s.PairwiseNeighborLimit)
	}
	if override != nil {
		if override.MinTrades != nil {
			s.MinTrades = *override.MinTrades
		}
		if override.DrawdownLambda != nil {
			s.DrawdownLambda = *override.DrawdownLambda
		}
		if override.NeighborThreshold != nil {
			s.NeighborThreshold = *override.NeighborThreshold
		}
		if override.StabilityGamma != nil {
			s.StabilityGamma = *override.StabilityGamma
		}
		if override.PairwiseNeighborLimit != nil {
			s.PairwiseNeighborLimit = *override.PairwiseNeighborLimit
		}
	}
	// Normalize exactly once, after the final merge.
	s.MinTrades = clampInt(s.MinTrades, 0, math.MaxInt32)
	s.DrawdownLambda = clampFloat(s.DrawdownLambda, 0, 100)
	s.NeighborThreshold = clampFloat(s.NeighborThreshold, 0, 10)
	s.StabilityGamma = clampFloat(s.StabilityGamma, 0, 16)
	s.PairwiseNeighborLimit = clampInt(s.PairwiseNeighborLimit, 0, math.MaxInt32)
	return s, nil
}

// ResolveTemplateSettings mirrors ResolveParamSettings for the Template Scorer.
func ResolveTemplateSettings(ctx context.Context, lookup Lookup, override *TemplateOverrides) (TemplateSettings, error) {
	s := DefaultTemplateSettings()
	if lookup != nil {
		vals, err := lookup(ctx, []string{
			KeyTemplateReturnScale,
			KeyTemplateDrawdownLambda,
			KeyTemplateTradeTarget,
			KeyTemplateTradeWeight,
			KeyTemplateNegativeStrength,
			KeyTemplateHalfLifeDays,
			KeyTemplateVerifyMinMult,
			KeyTemplateVerifyMaxMult,
		})
		if err != nil {
			return TemplateSettings{}, err
		}
		applyFloat(vals, KeyTemplateReturnScale, &s.ReturnScale)
		applyFloat(vals, KeyTemplateDrawdownLambda, &s.DrawdownLambda)
		applyFloat(vals, KeyTemplateTradeTarget, &s.TradeTarget)
		applyFloat(vals, KeyTemplateTradeWeight, &s.TradeWeight)
		applyFloat(vals, KeyTemplateNegativeStrength, &s.NegativePenaltyStrength)
		applyFloat(vals, KeyTemplateHalfLifeDays, &s.HalfLifeDays)
		applyFloat(vals, KeyTemplateVerifyMinMult, &s.VerifyMinMultiplier)
		applyFloat(vals, KeyTemplateVerifyMaxMult, &s.VerifyMaxMultiplier)
	}
	if override != nil {
		if override.ReturnScale != nil {
			s.ReturnScale = *override.ReturnScale
		}
		if override.DrawdownLambda != nil {
			s.DrawdownLambda = *override.DrawdownLambda
		}
		if override.TradeTarget != nil {
			s.TradeTarget = *override.TradeTarget
		}
		if override.TradeWeight != nil {
			s.TradeWeight = *override.TradeWeight
		}
		if override.NegativePenaltyStrength != nil {
			s.NegativePenaltyStrength = *override.NegativePenaltyStrength
		}
		if override.HalfLifeDays != nil {
			s.HalfLifeDays = *override.HalfLifeDays
		}
		if override.VerifyMinMultiplier != nil {
			s.VerifyMinMultiplier = *override.VerifyMinMultiplier
		}
		if override.VerifyMaxMultiplier != nil {
			s.VerifyMaxMultiplier = *override.VerifyMaxMultiplier
		}
	}
	s.ReturnScale = clampFloat(s.ReturnScale, 1e-6, 100)
	s.DrawdownLambda = clampFloat(s.DrawdownLambda, 0, 100)
	s.TradeTarget = clampFloat(s.TradeTarget, 1, 1e9)
	s.TradeWeight = clampFloat(s.TradeWeight, 0, 1)
	s.NegativePenaltyStrength = clampFloat(s.NegativePenaltyStrength, 0, 100)
	s.HalfLifeDays = clampFloat(s.HalfLifeDays, 1, 36500)
	s.VerifyMinMultiplier = clampFloat(s.VerifyMinMultiplier, 0, 1)
	s.VerifyMaxMultiplier = clampFloat(s.VerifyMaxMultiplier, s.VerifyMinMultiplier, 2)
	return s, nil
}

func applyFloat(vals map[string]*string, key string, dst *float64) {
	raw, ok := vals[key]
	if !ok || raw == nil {
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	*dst = v
}

func applyInt(vals map[string]*string, key string, dst *int) {
	raw, ok := vals[key]
	if !ok || raw == nil {
		return
	}
	// Accept "20" and "20.0" alike; round to nearest.
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	*dst = int(math.Round(v))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
