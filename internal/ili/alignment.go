package ili

import (
	"math"
	"sort"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// Control-point alignment: extract fixed features, match them between two
// runs, fit a piecewise-linear distance transform, apply it to Run B, and
// report per-control-point residuals.

// maxSpacingDiffPct guards sequence matching against an extra or missing
// weld desynchronizing the whole ordinal pairing: a pair is rejected when
// the spacing to the previous accepted pair differs by more than this
// fraction between the two runs.
const maxSpacingDiffPct = 0.20

// degenerateSpanFt is the Run-B span below which a segment's scale cannot
// be derived and a constant offset is used instead.
const degenerateSpanFt = 1e-9

// AlignmentMethod records how control points were matched (or not).
type AlignmentMethod string

const (
	AlignByJoint    AlignmentMethod = "joint_number"
	AlignBySequence AlignmentMethod = "sequence"
	AlignIdentity   AlignmentMethod = "identity" // zero matched points
	AlignConstant   AlignmentMethod = "constant_offset"
)

// AlignmentResult is the full output of AlignRuns. Degraded is set when
// fewer than two control points matched, so downstream consumers can flag
// low confidence; the pipeline still proceeds with an identity or
// constant-offset transform in that case.
type AlignmentResult struct {
	Aligned   []FeatureRecord
	Segments  []Segment
	Matched   []ControlPointPair
	Residuals []Residual
	Method    AlignmentMethod
	Degraded  bool
}

// ExtractControlPoints filters the run to fixed-feature categories, sorted
// by distance.
func ExtractControlPoints(run []FeatureRecord) []FeatureRecord {
	cp := make([]FeatureRecord, 0, len(run)/4)
	for _, f := range run {
		if f.IsControlPoint() {
			cp = append(cp, f)
		}
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Distance < cp[j].Distance })
	return cp
}

// dedupeByJoint keeps, for each joint number, the weld nearest the start of
// the run. Input must be girth welds with known joint numbers.
func dedupeByJoint(welds []FeatureRecord) map[int]FeatureRecord {
	byJoint := make(map[int]FeatureRecord, len(welds))
	for _, w := range welds {
		j := *w.JointNumber
		if prev, ok := byJoint[j]; !ok || w.Distance < prev.Distance {
			byJoint[j] = w
		}
	}
	return byJoint
}

// MatchControlPointsByJoint matches girth welds between two runs on joint
// number. Only girth welds are considered: other features sharing a joint
// number are not reliable one-to-one matches.
func MatchControlPointsByJoint(cpA, cpB []FeatureRecord) []ControlPointPair {
	var weldsA, weldsB []FeatureRecord
	for _, f := range cpA {
		if f.FeatureType == TypeGirthWeld && f.JointNumber != nil {
			weldsA = append(weldsA, f)
		}
	}
	for _, f := range cpB {
		if f.FeatureType == TypeGirthWeld && f.JointNumber != nil {
			weldsB = append(weldsB, f)
		}
	}
	if len(weldsA) == 0 || len(weldsB) == 0 {
		monitoring.Logf("alignment: no girth welds with joint numbers for matching")
		return nil
	}

	byJointA := dedupeByJoint(weldsA)
	byJointB := dedupeByJoint(weldsB)

	var pairs []ControlPointPair
	for joint, a := range byJointA {
		b, ok := byJointB[joint]
		if !ok {
			continue
		}
		pairs = append(pairs, ControlPointPair{
			JointNumber: ptrInt(joint),
			DistanceA:   a.Distance,
			DistanceB:   b.Distance,
			FeatureType: TypeGirthWeld,
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].DistanceA < pairs[j].DistanceA })
	monitoring.Logf("alignment: matched %d girth welds by joint number", len(pairs))
	return pairs
}

// MatchControlPointsBySequence pairs girth welds by ordinal rank after
// sorting both runs by distance. A pair is rejected when its spacing to the
// previous accepted pair disagrees between runs by more than
// maxSpacingDiffPct.
func MatchControlPointsBySequence(cpA, cpB []FeatureRecord) []ControlPointPair {
	var weldsA, weldsB []FeatureRecord
	for _, f := range cpA {
		if f.FeatureType == TypeGirthWeld {
			weldsA = append(weldsA, f)
		}
	}
	for _, f := range cpB {
		if f.FeatureType == TypeGirthWeld {
			weldsB = append(weldsB, f)
		}
	}
	sort.Slice(weldsA, func(i, j int) bool { return weldsA[i].Distance < weldsA[j].Distance })
	sort.Slice(weldsB, func(i, j int) bool { return weldsB[i].Distance < weldsB[j].Distance })

	n := len(weldsA)
	if len(weldsB) < n {
		n = len(weldsB)
	}
	if n == 0 {
		monitoring.Logf("alignment: no girth welds for sequence matching")
		return nil
	}

	var pairs []ControlPointPair
	rejected := 0
	for i := 0; i < n; i++ {
		pair := ControlPointPair{
			JointNumber: weldsA[i].JointNumber,
			DistanceA:   weldsA[i].Distance,
			DistanceB:   weldsB[i].Distance,
			FeatureType: TypeGirthWeld,
		}
		if len(pairs) > 0 {
			prev := pairs[len(pairs)-1]
			spacingA := pair.DistanceA - prev.DistanceA
			spacingB := pair.DistanceB - prev.DistanceB
			if spacingA > 0 {
				diffPct := math.Abs(spacingB-spacingA) / spacingA
				if diffPct > maxSpacingDiffPct {
					rejected++
					continue
				}
			}
		}
		pairs = append(pairs, pair)
	}
	if rejected > 0 {
		monitoring.Logf("alignment: sequence matching rejected %d pairs with spacing diff > %.0f%%",
			rejected, maxSpacingDiffPct*100)
	}
	monitoring.Logf("alignment: matched %d control points by sequence", len(pairs))
	return pairs
}

// MatchControlPoints tries joint-number matching first and falls back to
// sequence matching when fewer than two joint-based pairs result.
func MatchControlPoints(cpA, cpB []FeatureRecord) ([]ControlPointPair, AlignmentMethod) {
	pairs := MatchControlPointsByJoint(cpA, cpB)
	if len(pairs) >= 2 {
		return pairs, AlignByJoint
	}
	monitoring.Logf("alignment: joint-based matching insufficient (%d pairs); falling back to sequence", len(pairs))
	return MatchControlPointsBySequence(cpA, cpB), AlignBySequence
}

// ComputePiecewiseTransforms derives one segment per consecutive pair of
// matched control points. With no points it returns a single identity
// segment; with one point, a single constant-offset segment spanning the
// whole run. Segments come out ordered by BStart, contiguous, with the
// first and last extended to +/-Inf.
func ComputePiecewiseTransforms(pairs []ControlPointPair) []Segment {
	inf := math.Inf(1)

	if len(pairs) == 0 {
		return []Segment{{
			ID: 0, AStart: -inf, AEnd: inf, BStart: -inf, BEnd: inf,
			Scale: 1.0, Shift: 0.0,
		}}
	}
	if len(pairs) == 1 {
		return []Segment{{
			ID: 0, AStart: -inf, AEnd: inf, BStart: -inf, BEnd: inf,
			Scale: 1.0, Shift: pairs[0].DistanceA - pairs[0].DistanceB,
		}}
	}

	sorted := make([]ControlPointPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DistanceA < sorted[j].DistanceA })

	segments := make([]Segment, 0, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		p0, p1 := sorted[i], sorted[i+1]
		var scale, shift float64
		if math.Abs(p1.DistanceB-p0.DistanceB) < degenerateSpanFt {
			scale = 1.0
			shift = p0.DistanceA - p0.DistanceB
		} else {
			scale = (p1.DistanceA - p0.DistanceA) / (p1.DistanceB - p0.DistanceB)
			shift = p0.DistanceA - scale*p0.DistanceB
		}
		segments = append(segments, Segment{
			ID:     i,
			AStart: p0.DistanceA,
			AEnd:   p1.DistanceA,
			BStart: p0.DistanceB,
			BEnd:   p1.DistanceB,
			Scale:  scale,
			Shift:  shift,
		})
	}
	segments[0].AStart = -inf
	segments[0].BStart = -inf
	segments[len(segments)-1].AEnd = inf
	segments[len(segments)-1].BEnd = inf
	return segments
}

// segmentFor classifies a raw Run-B distance into the segment whose BStart
// is the greatest value <= the distance. Segments must be ordered by BStart.
func segmentFor(segments []Segment, rawDistance float64) Segment {
	idx := sort.Search(len(segments), func(i int) bool {
		return segments[i].BStart > rawDistance
	}) - 1
	if idx < 0 {
		idx = 0
	}
	return segments[idx]
}

// ApplyAlignment returns a copy of run B with CorrectedDistance set on
// every record. Inputs are not mutated.
func ApplyAlignment(runB []FeatureRecord, segments []Segment) []FeatureRecord {
	aligned := make([]FeatureRecord, len(runB))
	for i, f := range runB {
		fc := f
		seg := segmentFor(segments, f.Distance)
		corrected := seg.Apply(f.Distance)
		fc.CorrectedDistance = &corrected
		aligned[i] = fc
	}
	return aligned
}

// ComputeResiduals measures, at each matched control point, how far the
// corrected Run-B distance lands from the Run-A distance. Round-trip
// residuals at the points that defined the transform should be near zero.
func ComputeResiduals(pairs []ControlPointPair, segments []Segment) []Residual {
	residuals := make([]Residual, 0, len(pairs))
	for _, p := range pairs {
		seg := segmentFor(segments, p.DistanceB)
		corrected := seg.Apply(p.DistanceB)
		residuals = append(residuals, Residual{
			DistanceA:  p.DistanceA,
			DistanceB:  p.DistanceB,
			Corrected:  corrected,
			ResidualFt: corrected - p.DistanceA,
		})
	}
	return residuals
}

// AlignRuns runs the full alignment stage: control-point extraction,
// matching, piecewise transform, application, residuals. It never fails
// outright: with zero or one matched point the result is flagged Degraded
// and uses an identity or constant-offset transform.
func AlignRuns(runA, runB []FeatureRecord) AlignmentResult {
	cpA := ExtractControlPoints(runA)
	cpB := ExtractControlPoints(runB)
	monitoring.Logf("alignment: %d control points in run A, %d in run B", len(cpA), len(cpB))

	pairs, method := MatchControlPoints(cpA, cpB)
	switch len(pairs) {
	case 0:
		method = AlignIdentity
		monitoring.Logf("alignment: no matched control points; applying identity transform (degraded)")
	case 1:
		method = AlignConstant
		monitoring.Logf("alignment: single matched control point; applying constant offset (degraded)")
	}

	segments := ComputePiecewiseTransforms(pairs)
	aligned := ApplyAlignment(runB, segments)
	residuals := ComputeResiduals(pairs, segments)

	return AlignmentResult{
		Aligned:   aligned,
		Segments:  segments,
		Matched:   pairs,
		Residuals: residuals,
		Method:    method,
		Degraded:  len(pairs) < 2,
	}
}
