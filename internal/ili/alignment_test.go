package ili

import (
	"math"
	"testing"
)

func weld(run, id string, dist float64, joint int) FeatureRecord {
	return FeatureRecord{
		RunID:       run,
		FeatureID:   id,
		Distance:    dist,
		JointNumber: ptrInt(joint),
		FeatureType: TypeGirthWeld,
	}
}

func TestMatchControlPointsByJoint(t *testing.T) {
	cpA := []FeatureRecord{
		weld("A", "a1", 0, 1),
		weld("A", "a2", 40, 2),
		weld("A", "a3", 80, 3),
	}
	cpB := []FeatureRecord{
		weld("B", "b1", 2, 1),
		weld("B", "b2", 42, 2),
		weld("B", "b4", 125, 4), // no counterpart in A
	}

	pairs := MatchControlPointsByJoint(cpA, cpB)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 joint-matched pairs, got %d", len(pairs))
	}
	if pairs[0].DistanceA != 0 || pairs[0].DistanceB != 2 {
		t.Errorf("first pair = (%v, %v), want (0, 2)", pairs[0].DistanceA, pairs[0].DistanceB)
	}
	if pairs[1].DistanceA != 40 || pairs[1].DistanceB != 42 {
		t.Errorf("second pair = (%v, %v), want (40, 42)", pairs[1].DistanceA, pairs[1].DistanceB)
	}
}

func TestMatchControlPointsByJoint_DuplicateJoint(t *testing.T) {
	// Two welds claim joint 1; the one nearest the start wins.
	cpA := []FeatureRecord{
		weld("A", "a1", 10, 1),
		weld("A", "a1b", 5, 1),
	}
	cpB := []FeatureRecord{weld("B", "b1", 6, 1)}

	pairs := MatchControlPointsByJoint(cpA, cpB)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].DistanceA != 5 {
		t.Errorf("kept weld at %v, want the one at 5", pairs[0].DistanceA)
	}
}

func TestMatchControlPointsBySequence_SpacingRejection(t *testing.T) {
	// Third weld's spacing disagrees by far more than 20% between runs.
	cpA := []FeatureRecord{
		{FeatureID: "a1", Distance: 0, FeatureType: TypeGirthWeld},
		{FeatureID: "a2", Distance: 40, FeatureType: TypeGirthWeld},
		{FeatureID: "a3", Distance: 80, FeatureType: TypeGirthWeld},
	}
	cpB := []FeatureRecord{
		{FeatureID: "b1", Distance: 0, FeatureType: TypeGirthWeld},
		{FeatureID: "b2", Distance: 41, FeatureType: TypeGirthWeld},
		{FeatureID: "b3", Distance: 200, FeatureType: TypeGirthWeld},
	}

	pairs := MatchControlPointsBySequence(cpA, cpB)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs after spacing rejection, got %d", len(pairs))
	}
	for _, p := range pairs {
		if p.DistanceB == 200 {
			t.Error("pair with inconsistent spacing must be rejected")
		}
	}
}

func TestComputePiecewiseTransforms_TwoPoints(t *testing.T) {
	pairs := []ControlPointPair{
		{DistanceA: 0, DistanceB: 2},
		{DistanceA: 100, DistanceB: 104},
	}
	segments := ComputePiecewiseTransforms(pairs)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	s := segments[0]
	// scale = 100/102, shift = -scale*2; both endpoints must map exactly.
	if got := s.Apply(2); got != 0 {
		t.Errorf("Apply(2) = %v, want 0", got)
	}
	if got := s.Apply(104); got != 100 {
		t.Errorf("Apply(104) = %v, want 100", got)
	}
	if !math.IsInf(s.BStart, -1) || !math.IsInf(s.BEnd, 1) {
		t.Errorf("single segment must span -Inf..+Inf, got [%v, %v]", s.BStart, s.BEnd)
	}
}

func TestComputePiecewiseTransforms_DegenerateSpan(t *testing.T) {
	pairs := []ControlPointPair{
		{DistanceA: 0, DistanceB: 5},
		{DistanceA: 10, DistanceB: 5}, // zero B span
	}
	segments := ComputePiecewiseTransforms(pairs)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Scale != 1.0 {
		t.Errorf("degenerate span must fall back to scale 1, got %v", segments[0].Scale)
	}
}

func TestApplyAlignment_RoundsTo4Decimals(t *testing.T) {
	pairs := []ControlPointPair{
		{DistanceA: 0, DistanceB: 0},
		{DistanceA: 100, DistanceB: 103},
	}
	segments := ComputePiecewiseTransforms(pairs)
	runB := []FeatureRecord{{FeatureID: "b", Distance: 50, FeatureType: TypeMetalLoss}}

	aligned := ApplyAlignment(runB, segments)
	if aligned[0].CorrectedDistance == nil {
		t.Fatal("corrected distance not set")
	}
	got := *aligned[0].CorrectedDistance
	want := math.Round(50*100.0/103.0*1e4) / 1e4
	if got != want {
		t.Errorf("corrected = %v, want %v", got, want)
	}
	// Input slice must not be mutated.
	if runB[0].CorrectedDistance != nil {
		t.Error("ApplyAlignment mutated its input")
	}
}

func TestSegmentFor_PicksGreatestBStartAtOrBelow(t *testing.T) {
	pairs := []ControlPointPair{
		{DistanceA: 0, DistanceB: 0},
		{DistanceA: 100, DistanceB: 100},
		{DistanceA: 200, DistanceB: 210},
	}
	segments := ComputePiecewiseTransforms(pairs)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}

	// 150 falls in the second B interval [100, 210).
	second := segmentFor(segments, 150)
	if second.ID != 1 {
		t.Errorf("distance 150 classified into segment %d, want 1", second.ID)
	}
	// Beyond the last knot still lands in the last extended segment.
	last := segmentFor(segments, 500)
	if last.ID != 1 {
		t.Errorf("distance 500 classified into segment %d, want 1", last.ID)
	}
	// Before the first knot lands in the first extended segment.
	first := segmentFor(segments, -10)
	if first.ID != 0 {
		t.Errorf("distance -10 classified into segment %d, want 0", first.ID)
	}
}

func TestAlignRuns_SingleControlPointConstantOffset(t *testing.T) {
	// One matched weld: constant offset, flagged degraded.
	runA := []FeatureRecord{
		weld("A", "wa", 0, 1),
		{RunID: "A", FeatureID: "ml-a", Distance: 100, FeatureType: TypeMetalLoss},
	}
	runB := []FeatureRecord{
		weld("B", "wb", 2, 1),
		{RunID: "B", FeatureID: "ml-b", Distance: 103, FeatureType: TypeMetalLoss},
	}

	res := AlignRuns(runA, runB)
	if !res.Degraded {
		t.Error("single control point must flag the alignment degraded")
	}
	if res.Method != AlignConstant {
		t.Errorf("method = %v, want %v", res.Method, AlignConstant)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if res.Segments[0].Shift != -2 {
		t.Errorf("shift = %v, want -2", res.Segments[0].Shift)
	}

	var anomaly *FeatureRecord
	for i := range res.Aligned {
		if res.Aligned[i].FeatureID == "ml-b" {
			anomaly = &res.Aligned[i]
		}
	}
	if anomaly == nil || anomaly.CorrectedDistance == nil {
		t.Fatal("aligned anomaly missing corrected distance")
	}
	if *anomaly.CorrectedDistance != 101 {
		t.Errorf("corrected anomaly distance = %v, want 101", *anomaly.CorrectedDistance)
	}
}

func TestAlignRuns_NoControlPointsIdentity(t *testing.T) {
	runA := []FeatureRecord{{FeatureID: "a", Distance: 10, FeatureType: TypeMetalLoss}}
	runB := []FeatureRecord{{FeatureID: "b", Distance: 11, FeatureType: TypeMetalLoss}}

	res := AlignRuns(runA, runB)
	if !res.Degraded || res.Method != AlignIdentity {
		t.Errorf("degraded=%v method=%v, want degraded identity", res.Degraded, res.Method)
	}
	if got := *res.Aligned[0].CorrectedDistance; got != 11 {
		t.Errorf("identity transform changed distance: got %v, want 11", got)
	}
}

func TestComputeResiduals(t *testing.T) {
	pairs := []ControlPointPair{
		{DistanceA: 0, DistanceB: 2},
		{DistanceA: 100, DistanceB: 102},
	}
	segments := ComputePiecewiseTransforms(pairs)
	residuals := ComputeResiduals(pairs, segments)
	if len(residuals) != 2 {
		t.Fatalf("expected 2 residuals, got %d", len(residuals))
	}
	for _, r := range residuals {
		if math.Abs(r.ResidualFt) > 1e-3 {
			t.Errorf("control point residual %v at A=%v, want ~0", r.ResidualFt, r.DistanceA)
		}
	}
}
