package ili

import (
	"math"
	"sort"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// Anomaly matching: the pipeline is divided into segments at the matched
// control points' Run-A distances, then each segment is solved as an
// independent optimal one-to-one assignment under hard gating and a
// weighted attribute cost. Segmentation bounds the candidate-pair count and
// keeps a feature at mile 0 from ever being costed against one at mile 50.

// Weights for the matching cost function. Depth and size are weighted low
// because they are expected to change between runs: that change is the
// growth being measured. Distance and clock are the primary signals.
type Weights struct {
	Dist        float64
	Clock       float64
	Depth       float64
	Size        float64
	TypePenalty float64 // added when types differ but are compatible
}

// DefaultWeights returns the production-default cost weights.
func DefaultWeights() Weights {
	return Weights{
		Dist:        1.0,
		Clock:       0.5,
		Depth:       0.1,
		Size:        0.05,
		TypePenalty: 10.0,
	}
}

// MatchParams gathers the matching tolerances and weights.
type MatchParams struct {
	DistTolFt   float64 // candidate gate: max distance difference
	ClockTolDeg float64 // candidate gate: max circular clock difference
	CostThresh  float64 // above this an accepted pair is UNCERTAIN
	Weights     Weights
}

// DefaultMatchParams returns the documented default tolerances.
func DefaultMatchParams() MatchParams {
	return MatchParams{
		DistTolFt:   10.0,
		ClockTolDeg: 15.0,
		CostThresh:  15.0,
		Weights:     DefaultWeights(),
	}
}

// MatchResult is the matching stage output.
type MatchResult struct {
	Matched []MatchedPair
	Missing []FeatureRecord // Run A only
	New     []FeatureRecord // Run B only
}

// pairCost computes the matching cost between two anomalies, or ok=false
// when a hard gate rejects the pair. Missing depth or size on either side
// contributes zero to the cost.
func pairCost(a, b *FeatureRecord, p MatchParams) (cost float64, ok bool) {
	// Orientation gate: known and different means different wall surface.
	if a.Orientation != "" && b.Orientation != "" && a.Orientation != b.Orientation {
		return 0, false
	}
	if !TypesCompatible(a.FeatureType, b.FeatureType) {
		return 0, false
	}

	deltaDist := math.Abs(a.Distance - b.EffectiveDistance())
	if deltaDist > p.DistTolFt {
		return 0, false
	}

	deltaClock := ClockDistance(a.ClockDeg, b.ClockDeg)
	if deltaClock != nil && *deltaClock > p.ClockTolDeg {
		return 0, false
	}

	var clockContrib float64
	if deltaClock != nil {
		clockContrib = *deltaClock
	}

	var deltaDepth float64
	if a.DepthPct != nil && b.DepthPct != nil {
		deltaDepth = math.Abs(*a.DepthPct - *b.DepthPct)
	}

	var deltaSize float64
	if a.LengthIn != nil && b.LengthIn != nil {
		deltaSize += math.Abs(*a.LengthIn - *b.LengthIn)
	}
	if a.WidthIn != nil && b.WidthIn != nil {
		deltaSize += math.Abs(*a.WidthIn - *b.WidthIn)
	}

	var typePenalty float64
	if a.FeatureType != b.FeatureType {
		typePenalty = p.Weights.TypePenalty
	}

	w := p.Weights
	cost = w.Dist*deltaDist + w.Clock*clockContrib + w.Depth*deltaDepth + w.Size*deltaSize + typePenalty
	if math.IsNaN(cost) {
		return 0, false
	}
	return cost, true
}

// buildPair assembles the output row for an accepted assignment.
func buildPair(a, b *FeatureRecord, cost float64, segmentID int, costThresh float64) MatchedPair {
	status := StatusMatched
	if cost > costThresh {
		status = StatusUncertain
	}
	deltaClock := ClockDistance(a.ClockDeg, b.ClockDeg)
	return MatchedPair{
		FeatureIDA:         a.FeatureID,
		FeatureIDB:         b.FeatureID,
		DistanceA:          a.Distance,
		CorrectedDistanceB: b.EffectiveDistance(),
		RawDistanceB:       b.Distance,
		DeltaDistFt:        math.Abs(a.Distance - b.EffectiveDistance()),
		ClockDegA:          a.ClockDeg,
		ClockDegB:          b.ClockDeg,
		DeltaClockDeg:      deltaClock,
		FeatureType:        a.FeatureType,
		Orientation:        a.Orientation,
		DepthPctA:          a.DepthPct,
		DepthPctB:          b.DepthPct,
		LengthA:            a.LengthIn,
		LengthB:            b.LengthIn,
		WidthA:             a.WidthIn,
		WidthB:             b.WidthIn,
		WallThicknessA:     a.WallThickness,
		WallThicknessB:     b.WallThickness,
		Cost:               cost,
		SegmentID:          segmentID,
		Status:             status,
	}
}

// assignSegment solves one segment's optimal assignment. Returns accepted
// pairs plus the unmatched indices on each side.
func assignSegment(segA, segB []FeatureRecord, p MatchParams, segmentID int) ([]MatchedPair, []int, []int) {
	nA, nB := len(segA), len(segB)
	if nA == 0 || nB == 0 {
		return nil, indexRange(nA), indexRange(nB)
	}

	cost := make([][]float64, nA)
	feasible := false
	for i := range segA {
		cost[i] = make([]float64, nB)
		for j := range segB {
			if c, ok := pairCost(&segA[i], &segB[j], p); ok {
				cost[i][j] = c
				feasible = true
			} else {
				cost[i][j] = bigCost
			}
		}
	}
	if !feasible {
		return nil, indexRange(nA), indexRange(nB)
	}

	assign := hungarianAssign(cost)

	var matched []MatchedPair
	usedB := make(map[int]bool, nB)
	var unmatchedA []int
	for i, j := range assign {
		// The solver can be forced onto a sentinel cell when a row or
		// column has no feasible partner; discard those.
		if j < 0 || cost[i][j] >= bigCost {
			unmatchedA = append(unmatchedA, i)
			continue
		}
		usedB[j] = true
		matched = append(matched, buildPair(&segA[i], &segB[j], cost[i][j], segmentID, p.CostThresh))
	}
	var unmatchedB []int
	for j := 0; j < nB; j++ {
		if !usedB[j] {
			unmatchedB = append(unmatchedB, j)
		}
	}
	return matched, unmatchedA, unmatchedB
}

func indexRange(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Anomalies filters a run to matchable features (everything that is not a
// control point).
func Anomalies(run []FeatureRecord) []FeatureRecord {
	var out []FeatureRecord
	for _, f := range run {
		if !f.IsControlPoint() {
			out = append(out, f)
		}
	}
	return out
}

// MatchAnomalies runs segment-wise optimal matching between Run A and the
// aligned Run B. Segments are the half-open intervals (lo, hi] between
// consecutive matched control points' Run-A distances; Run-A anomalies are
// binned by raw distance, Run-B anomalies by corrected distance.
func MatchAnomalies(runA, alignedB []FeatureRecord, controlPoints []ControlPointPair, p MatchParams) MatchResult {
	anomA := Anomalies(runA)
	anomB := Anomalies(alignedB)
	monitoring.Logf("matching: %d matchable anomalies in run A, %d in run B", len(anomA), len(anomB))

	cuts := make([]float64, 0, len(controlPoints))
	for _, cp := range controlPoints {
		cuts = append(cuts, cp.DistanceA)
	}
	sort.Float64s(cuts)
	boundaries := make([]float64, 0, len(cuts)+2)
	boundaries = append(boundaries, math.Inf(-1))
	boundaries = append(boundaries, cuts...)
	boundaries = append(boundaries, math.Inf(1))

	var result MatchResult
	nSegments := len(boundaries) - 1
	for seg := 0; seg < nSegments; seg++ {
		lo, hi := boundaries[seg], boundaries[seg+1]

		var segA, segB []FeatureRecord
		for _, f := range anomA {
			if f.Distance > lo && f.Distance <= hi {
				segA = append(segA, f)
			}
		}
		for _, f := range anomB {
			d := f.EffectiveDistance()
			if d > lo && d <= hi {
				segB = append(segB, f)
			}
		}
		if len(segA) == 0 && len(segB) == 0 {
			continue
		}

		matched, umA, umB := assignSegment(segA, segB, p, seg)
		result.Matched = append(result.Matched, matched...)
		for _, i := range umA {
			result.Missing = append(result.Missing, segA[i])
		}
		for _, j := range umB {
			result.New = append(result.New, segB[j])
		}
	}

	uncertain := 0
	for _, m := range result.Matched {
		if m.Status == StatusUncertain {
			uncertain++
		}
	}
	monitoring.Logf("matching: %d matched (%d confident, %d uncertain), %d missing, %d new",
		len(result.Matched), len(result.Matched)-uncertain, uncertain,
		len(result.Missing), len(result.New))
	return result
}
