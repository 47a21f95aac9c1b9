package scoring

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Parameters that describe account scale rather than strategy behavior are
// excluded from distance computation, along with the display-only ticker.
var ignoredDistanceKeys = map[string]struct{}{
	"capital":     {},
	"maxLeverage": {},
	"ticker":      {},
}

const (
	// scaleFloor keeps divisions stable for keys with a tiny nonzero spread.
	scaleFloor = 1e-6
	// flatSpread is the spread below which a key stops discriminating and is
	// dropped from distance entirely.
	flatSpread = 1e-8
	// minBucketWidth bounds the quantization step of the approximate search.
	minBucketWidth = 0.01
	// missingKeyPenalty is the squared term charged when only one side of a
	// pair carries a value for a key.
	missingKeyPenalty = 1.0
)

// numericParams extracts the numeric entries of a raw parameter mapping.
// Booleans and strings are display-only and never participate in distance.
func numericParams(params map[string]any) map[string]float64 {
	out := make(map[string]float64, len(params))
	for key, raw := range params {
		var v float64
		switch t := raw.(type) {
		case float64:
			v = t
		case float32:
			v = float64(t)
		case int:
			v = float64(t)
		case int32:
			v = float64(t)
		case int64:
			v = float64(t)
		case uint64:
			v = float64(t)
		case json.Number:
			f, err := t.Float64()
			if err != nil {
				continue
			}
			v = f
		default:
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[key] = v
	}
	return out
}

// paramScales derives a per-key normalization scale, max(p90-p10, scaleFloor),
// across the whole candidate population. Keys with near-zero spread are
// dropped: they cannot tell candidates apart.
func paramScales(cands []*normCandidate) map[string]float64 {
	byKey := map[string][]float64{}
	for _, c := range cands {
		for key, v := range c.num {
			if _, skip := ignoredDistanceKeys[key]; skip {
				continue
			}
			byKey[key] = append(byKey[key], v)
		}
	}
	scales := make(map[string]float64, len(byKey))
	for key, vals := range byKey {
		if len(vals) < 2 {
			continue
		}
		sort.Float64s(vals)
		spread := stat.Quantile(0.9, stat.LinInterp, vals, nil) - stat.Quantile(0.1, stat.LinInterp, vals, nil)
		if spread < flatSpread {
			continue
		}
		scales[key] = math.Max(spread, scaleFloor)
	}
	return scales
}

// paramDistance is the normalized RMS distance between two numeric parameter
// mappings over the keys that have a scale. A value missing on either side
// contributes a fixed penalty instead of erroring.
func paramDistance(a, b map[string]float64, scales map[string]float64) float64 {
	sum := 0.0
	terms := 0
	for key, scale := range scales {
		va, okA := a[key]
		vb, okB := b[key]
		switch {
		case okA && okB:
			d := (va - vb) / scale
			sum += d * d
			terms++
		case okA || okB:
			sum += missingKeyPenalty
			terms++
		}
	}
	if terms == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(sum / float64(terms))
}

// neighborSets returns, per candidate, the indices of the other candidates
// within threshold. Below pairwiseLimit the exact O(n^2) search runs; above
// it the bucketed approximation keeps the cost near-linear.
func neighborSets(cands []*normCandidate, scales map[string]float64, threshold float64, pairwiseLimit int) [][]int {
	if len(cands) <= pairwiseLimit {
		return exactNeighbors(cands, scales, threshold)
	}
	return bucketedNeighbors(cands, scales, threshold)
}

func exactNeighbors(cands []*normCandidate, scales map[string]float64, threshold float64) [][]int {
	n := len(cands)
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if paramDistance(cands[i].num, cands[j].num, scales) <= threshold {
				out[i] = append(out[i], j)
				out[j] = append(out[j], i)
			}
		}
	}
	return out
}

// bucketedNeighbors quantizes every scaled parameter into buckets of width
// max(threshold, minBucketWidth) and hashes each candidate into its own
// bucket plus the two adjacent ones per dimension. Exact distance is then
// computed only among candidates sharing at least one bucket key. Pairs that
// straddle bucket edges in two or more dimensions at once can be missed; that
// is an accepted approximation.
func bucketedNeighbors(cands []*normCandidate, scales map[string]float64, threshold float64) [][]int {
	width := math.Max(threshold, minBucketWidth)
	buckets := map[string][]int{}
	keysByCand := make([][]string, len(cands))
	for i, c := range cands {
		for key, scale := range scales {
			v, ok := c.num[key]
			if !ok {
				continue
			}
			base := int(math.Floor(v / scale / width))
			for _, b := range [3]int{base - 1, base, base + 1} {
				bk := key + ":" + strconv.Itoa(b)
				buckets[bk] = append(buckets[bk], i)
				keysByCand[i] = append(keysByCand[i], bk)
			}
		}
	}
	out := make([][]int, len(cands))
	for i := range cands {
		checked := map[int]struct{}{i: {}}
		for _, bk := range keysByCand[i] {
			for _, j := range buckets[bk] {
				if _, done := checked[j]; done {
					continue
				}
				checked[j] = struct{}{}
				if j < i {
					continue // pair already handled from j's side
				}
				if paramDistance(cands[i].num, cands[j].num, scales) <= threshold {
					out[i] = append(out[i], j)
					out[j] = append(out[j], i)
				}
			}
		}
	}
	return out
}
