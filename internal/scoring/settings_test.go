package scoring

import (
	"context"
	"errors"
	"testing"
)

func sptr(s string) *string { return &s }

func staticLookup(vals map[string]*string) Lookup {
	return func(ctx context.Context, keys []string) (map[string]*string, error) {
		return vals, nil
	}
}

func TestResolveParamSettings_Defaults(t *testing.T) {
	s, err := ResolveParamSettings(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s != DefaultParamSettings() {
		t.Fatalf("settings=%+v want defaults", s)
	}
}

func TestResolveParamSettings_LookupApplied(t *testing.T) {
	lookup := staticLookup(map[string]*string{
		KeyParamMinTrades:         sptr("30"),
		KeyParamDrawdownLambda:    sptr("2.0"),
		KeyParamNeighborThreshold: sptr("not-a-number"),
		KeyParamStabilityGamma:    nil,
	})
	s, err := ResolveParamSettings(context.Background(), lookup, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.MinTrades != 30 {
		t.Fatalf("min trades=%d want=30", s.MinTrades)
	}
	if s.DrawdownLambda != 2.0 {
		t.Fatalf("lambda=%v want=2.0", s.DrawdownLambda)
	}
	// Unparseable and unset values keep the defaults.
	if s.NeighborThreshold != 0.15 || s.StabilityGamma != 2 {
		t.Fatalf("threshold=%v gamma=%v want defaults", s.NeighborThreshold, s.StabilityGamma)
	}
}

func TestResolveParamSettings_OverrideBeatsLookup(t *testing.T) {
	lookup := staticLookup(map[string]*string{KeyParamMinTrades: sptr("30")})
	s, err := ResolveParamSettings(context.Background(), lookup, &ParamOverrides{MinTrades: iptr(5)})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.MinTrades != 5 {
		t.Fatalf("min trades=%d want=5", s.MinTrades)
	}
}

func TestResolveParamSettings_IntRoundingAndClamp(t *testing.T) {
	lookup := staticLookup(map[string]*string{
		KeyParamMinTrades:      sptr("20.6"),
		KeyParamDrawdownLambda: sptr("1e9"),
	})
	s, err := ResolveParamSettings(context.Background(), lookup, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.MinTrades != 21 {
		t.Fatalf("min trades=%d want=21", s.MinTrades)
	}
	if s.DrawdownLambda != 100 {
		t.Fatalf("lambda=%v want clamped to 100", s.DrawdownLambda)
	}
}

func TestResolveParamSettings_NegativeOverrideClamped(t *testing.T) {
	neg := -3
	s, err := ResolveParamSettings(context.Background(), nil, &ParamOverrides{MinTrades: &neg})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.MinTrades != 0 {
		t.Fatalf("min trades=%d want=0", s.MinTrades)
	}
}

func TestResolveTemplateSettings_VerifyBoundsOrdered(t *testing.T) {
	s, err := ResolveTemplateSettings(context.Background(), nil, &TemplateOverrides{
		VerifyMinMultiplier: fptr(0.9),
		VerifyMaxMultiplier: fptr(0.5),
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.VerifyMaxMultiplier < s.VerifyMinMultiplier {
		t.Fatalf("max=%v below min=%v", s.VerifyMaxMultiplier, s.VerifyMinMultiplier)
	}
}

func TestResolveSettings_LookupErrorPropagates(t *testing.T) {
	boom := errors.New("settings store down")
	lookup := Lookup(func(ctx context.Context, keys []string) (map[string]*string, error) {
		return nil, boom
	})
	if _, err := ResolveParamSettings(context.Background(), lookup, nil); !errors.Is(err, boom) {
		t.Fatalf("err=%v want=%v", err, boom)
	}
	if _, err := ResolveTemplateSettings(context.Background(), lookup, nil); !errors.Is(err, boom) {
		t.Fatalf("err=%v want=%v", err, boom)
	}
	if _, err := ScoreParams(context.Background(), nil, ParamOptions{Lookup: lookup}); !errors.Is(err, boom) {
		t.Fatalf("score err=%v want=%v", err, boom)
	}
}
