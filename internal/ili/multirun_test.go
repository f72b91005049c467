package ili

import (
	"math"
	"testing"
)

func pairAB(idA, idB string, depthA, depthB float64) MatchedPair {
	return MatchedPair{
		FeatureIDA:  idA,
		FeatureIDB:  idB,
		FeatureType: TypeMetalLoss,
		DepthPctA:   ptrFloat64(depthA),
		DepthPctB:   ptrFloat64(depthB),
		Status:      StatusMatched,
	}
}

func TestBuildTracks_ChainsAcrossRuns(t *testing.T) {
	// Feature f persists through all three runs; g only in the last two.
	pairs01 := []MatchedPair{pairAB("f-2010", "f-2017", 10, 18)}
	pairs12 := []MatchedPair{
		pairAB("f-2017", "f-2024", 18, 26),
		pairAB("g-2017", "g-2024", 5, 9),
	}

	tracks, err := BuildTracks([][]MatchedPair{pairs01, pairs12}, []string{"2010", "2017", "2024"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}

	full := tracks[0]
	if full.NDetections != 3 {
		t.Errorf("chained track detections = %d, want 3", full.NDetections)
	}
	wantIDs := []string{"f-2010", "f-2017", "f-2024"}
	for i, want := range wantIDs {
		if full.FeatureIDs[i] != want {
			t.Errorf("slot %d = %q, want %q", i, full.FeatureIDs[i], want)
		}
	}
	if *full.Depths[2] != 26 {
		t.Errorf("final depth = %v, want 26", *full.Depths[2])
	}

	partial := tracks[1]
	if partial.NDetections != 2 {
		t.Errorf("mid-sequence track detections = %d, want 2", partial.NDetections)
	}
	if partial.FeatureIDs[0] != "" || partial.Depths[0] != nil {
		t.Error("mid-sequence track must have an empty first slot")
	}
}

func TestBuildTracks_RunCountMismatch(t *testing.T) {
	_, err := BuildTracks([][]MatchedPair{{}}, []string{"2010", "2017", "2024"})
	if err == nil {
		t.Error("expected error for run id count mismatch")
	}
}

func TestDetectAcceleration(t *testing.T) {
	cases := []struct {
		name  string
		rates []float64
		accel bool
	}{
		{"accelerating", []float64{1.0, 2.0}, true},       // +100%
		{"stable", []float64{1.0, 1.2}, false},            // +20%, under 50%
		{"decelerating", []float64{2.0, 0.5}, false},      // -75%
		{"from zero", []float64{0, 1.0}, true},            // infinite change
		{"still flat", []float64{0, 0}, false},            // not growing
		{"single interval", []float64{1.0}, false},        // nothing to compare
		{"uses last two", []float64{5, 1.0, 2.0}, true},   // earlier history ignored
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DetectAcceleration(c.rates, 50)
			if got.Accelerating != c.accel {
				t.Errorf("rates %v: accelerating = %v (%s), want %v",
					c.rates, got.Accelerating, got.Description, c.accel)
			}
		})
	}
}

func TestDetectAcceleration_InfiniteFromZero(t *testing.T) {
	got := DetectAcceleration([]float64{0, 1.5}, 50)
	if !math.IsInf(got.RateChangePct, 1) {
		t.Errorf("rate change = %v, want +Inf", got.RateChangePct)
	}
}

func TestMultiRunGrowthAnalysis_TwoObservationFallback(t *testing.T) {
	got := MultiRunGrowthAnalysis("t0", []float64{0, 7}, []float64{15, 18}, DefaultGrowthParams(), CriterionBIC)
	if got.BestModel != ModelLinear2pt {
		t.Errorf("model = %q, want %q", got.BestModel, ModelLinear2pt)
	}
	if got.GrowthRatePctPerYr == nil || math.Abs(*got.GrowthRatePctPerYr-3.0/7.0) > 1e-9 {
		t.Errorf("rate = %v, want 3/7", got.GrowthRatePctPerYr)
	}
	if got.RemainingLifeYr == nil {
		t.Fatal("remaining life missing")
	}
	want := (80.0 - 18.0) / (3.0 / 7.0)
	if math.Abs(*got.RemainingLifeYr-want) > 1e-6 {
		t.Errorf("remaining life = %v, want %v", *got.RemainingLifeYr, want)
	}
}

func TestMultiRunGrowthAnalysis_ModelSelection(t *testing.T) {
	got := MultiRunGrowthAnalysis("t1", []float64{0, 8, 15}, []float64{10, 18, 26}, DefaultGrowthParams(), CriterionBIC)
	if got.BestModel != ModelLinear {
		t.Errorf("model = %q, want %q", got.BestModel, ModelLinear)
	}
	if got.ProjectedDepthPct == nil {
		t.Error("projection missing")
	}
	if got.BIC == nil || got.RSS == nil {
		t.Error("fit diagnostics missing")
	}
}

func TestMultiRunGrowthAnalysis_Degenerate(t *testing.T) {
	got := MultiRunGrowthAnalysis("t2", []float64{0}, []float64{15}, DefaultGrowthParams(), CriterionBIC)
	if got.BestModel != "" {
		t.Errorf("single observation produced model %q", got.BestModel)
	}
}

func TestAnalyzeTracks(t *testing.T) {
	complete := Track{
		TrackID:     0,
		FeatureIDs:  []string{"a", "b", "c"},
		Depths:      []*float64{ptrFloat64(10), ptrFloat64(18), ptrFloat64(26)},
		NDetections: 3,
	}
	gapped := Track{
		TrackID:     1,
		FeatureIDs:  []string{"", "d", "e"},
		Depths:      []*float64{nil, ptrFloat64(5), ptrFloat64(9)},
		NDetections: 2,
	}

	analyses := AnalyzeTracks([]Track{complete, gapped}, []float64{8, 7}, DefaultGrowthParams(), CriterionBIC)
	if len(analyses) != 1 {
		t.Fatalf("expected only the complete track analyzed, got %d", len(analyses))
	}
	a := analyses[0]
	if a.TrackID != "0" {
		t.Errorf("track id = %q, want \"0\"", a.TrackID)
	}
	if a.BestModel != ModelLinear {
		t.Errorf("model = %q, want %q", a.BestModel, ModelLinear)
	}
	// Interval rates 1.0 then 8/7: a 14% change, stable.
	if a.Acceleration.Accelerating {
		t.Errorf("flagged accelerating: %s", a.Acceleration.Description)
	}
}

func TestAnalyzeTracks_AccelThresholdFromParams(t *testing.T) {
	// Interval rates 1.0 then 1.3 %/yr, a 30% relative change.
	track := Track{
		TrackID:     0,
		FeatureIDs:  []string{"a", "b", "c"},
		Depths:      []*float64{ptrFloat64(10), ptrFloat64(15), ptrFloat64(21.5)},
		NDetections: 3,
	}
	gaps := []float64{5, 5}

	strict := DefaultGrowthParams()
	strict.AccelThresholdPct = 20

	analyses := AnalyzeTracks([]Track{track}, gaps, strict, CriterionBIC)
	if len(analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses))
	}
	if !analyses[0].Acceleration.Accelerating {
		t.Errorf("30%% change with a 20%% threshold should accelerate: %s",
			analyses[0].Acceleration.Description)
	}

	analyses = AnalyzeTracks([]Track{track}, gaps, DefaultGrowthParams(), CriterionBIC)
	if analyses[0].Acceleration.Accelerating {
		t.Errorf("30%% change with the 50%% default should stay stable: %s",
			analyses[0].Acceleration.Description)
	}
}
