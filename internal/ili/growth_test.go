package ili

import (
	"math"
	"testing"
)

func matchedDepths(depthA, depthB float64) MatchedPair {
	return MatchedPair{
		FeatureIDA:  "a",
		FeatureIDB:  "b",
		FeatureType: TypeMetalLoss,
		DepthPctA:   ptrFloat64(depthA),
		DepthPctB:   ptrFloat64(depthB),
		Status:      StatusMatched,
	}
}

func TestComputeGrowthRates(t *testing.T) {
	rows, err := ComputeGrowthRates([]MatchedPair{matchedDepths(15, 18)}, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	rate := rows[0].DepthGrowthPctPerYr
	if rate == nil {
		t.Fatal("depth rate not computed")
	}
	if math.Abs(*rate-3.0/7.0) > 1e-9 {
		t.Errorf("rate = %v, want %v", *rate, 3.0/7.0)
	}
	if rows[0].NegativeGrowth {
		t.Error("positive growth flagged negative")
	}
}

func TestComputeGrowthRates_NegativeFlag(t *testing.T) {
	rows, err := ComputeGrowthRates([]MatchedPair{matchedDepths(20, 17)}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !rows[0].NegativeGrowth {
		t.Error("shrinking depth not flagged as negative growth")
	}
	if *rows[0].DepthGrowthPctPerYr != -1.0 {
		t.Errorf("rate = %v, want -1", *rows[0].DepthGrowthPctPerYr)
	}
}

func TestComputeGrowthRates_InvalidYears(t *testing.T) {
	if _, err := ComputeGrowthRates(nil, 0); err == nil {
		t.Error("zero years must be an error")
	}
	if _, err := ComputeGrowthRates(nil, -3); err == nil {
		t.Error("negative years must be an error")
	}
}

func TestComputeGrowthRates_MilsColumns(t *testing.T) {
	m := matchedDepths(15, 18)
	m.WallThicknessA = ptrFloat64(0.25) // inches
	m.WallThicknessB = ptrFloat64(0.28) // B's reading does not affect mils
	rows, err := ComputeGrowthRates([]MatchedPair{m}, 7)
	if err != nil {
		t.Fatal(err)
	}
	r := rows[0]
	if r.DepthMilsA == nil || r.DepthMilsB == nil || r.DepthRateMilsPerYr == nil {
		t.Fatal("mils columns not computed with wall thickness present")
	}
	// 15% of 0.25 in = 0.0375 in = 37.5 mils.
	if math.Abs(*r.DepthMilsA-37.5) > 1e-9 {
		t.Errorf("depth A = %v mils, want 37.5", *r.DepthMilsA)
	}
	if math.Abs(*r.DepthMilsB-45.0) > 1e-9 {
		t.Errorf("depth B = %v mils, want 45", *r.DepthMilsB)
	}
}

func TestEstimateRemainingLife(t *testing.T) {
	rows, err := ComputeGrowthRates([]MatchedPair{matchedDepths(15, 18)}, 7)
	if err != nil {
		t.Fatal(err)
	}
	EstimateRemainingLife(rows, 80)

	life := rows[0].RemainingLifeYr
	if life == nil {
		t.Fatal("remaining life not estimated")
	}
	want := (80.0 - 18.0) / (3.0 / 7.0) // about 144.7 years
	if math.Abs(*life-want) > 1e-6 {
		t.Errorf("remaining life = %v, want %v", *life, want)
	}
	if rows[0].AlreadyCritical {
		t.Error("18%% flagged critical at an 80%% threshold")
	}
}

func TestEstimateRemainingLife_EdgeCases(t *testing.T) {
	t.Run("already critical", func(t *testing.T) {
		rows, _ := ComputeGrowthRates([]MatchedPair{matchedDepths(70, 85)}, 5)
		EstimateRemainingLife(rows, 80)
		if !rows[0].AlreadyCritical {
			t.Error("85%% not flagged critical")
		}
		if *rows[0].RemainingLifeYr != 0 {
			t.Errorf("remaining life = %v, want 0", *rows[0].RemainingLifeYr)
		}
	})

	t.Run("not growing", func(t *testing.T) {
		rows, _ := ComputeGrowthRates([]MatchedPair{matchedDepths(20, 18)}, 5)
		EstimateRemainingLife(rows, 80)
		if !math.IsInf(*rows[0].RemainingLifeYr, 1) {
			t.Errorf("remaining life = %v, want +Inf", *rows[0].RemainingLifeYr)
		}
	})

	t.Run("missing depth", func(t *testing.T) {
		m := MatchedPair{FeatureIDA: "a", FeatureIDB: "b", FeatureType: TypeMetalLoss}
		rows, _ := ComputeGrowthRates([]MatchedPair{m}, 5)
		EstimateRemainingLife(rows, 80)
		if rows[0].RemainingLifeYr != nil {
			t.Errorf("remaining life = %v, want nil for missing depth", *rows[0].RemainingLifeYr)
		}
	})
}

func TestForecastDepth(t *testing.T) {
	rows, _ := ComputeGrowthRates([]MatchedPair{
		matchedDepths(15, 18), // growing: extrapolated
		matchedDepths(20, 17), // shrinking: held at current depth
	}, 3)
	ForecastDepth(rows, 5)

	if p := rows[0].ProjectedDepthPct; p == nil || math.Abs(*p-23.0) > 1e-9 {
		t.Errorf("growing projection = %v, want 23", p)
	}
	if p := rows[1].ProjectedDepthPct; p == nil || *p != 17.0 {
		t.Errorf("shrinking projection = %v, want held at 17", p)
	}
}

func TestComputeSeverityScores_Ordering(t *testing.T) {
	rows, _ := ComputeGrowthRates([]MatchedPair{
		matchedDepths(10, 12), // slow, shallow
		matchedDepths(40, 55), // fast, deep
		matchedDepths(20, 24), // middle
	}, 5)
	EstimateRemainingLife(rows, 80)
	ComputeSeverityScores(rows)

	for i := 1; i < len(rows); i++ {
		if rows[i].SeverityScore > rows[i-1].SeverityScore {
			t.Fatalf("rows not sorted by severity: %v then %v",
				rows[i-1].SeverityScore, rows[i].SeverityScore)
		}
	}
	// The fast deep anomaly dominates every severity component.
	if *rows[0].DepthPctB != 55 {
		t.Errorf("most severe row has depth %v, want 55", *rows[0].DepthPctB)
	}
	if rows[0].SeverityScore != 100.0 {
		t.Errorf("dominant row score = %v, want 100", rows[0].SeverityScore)
	}
}

func TestComputeSeverityScores_AllEqual(t *testing.T) {
	// Identical rows: every min-max range collapses, all scores zero.
	rows, _ := ComputeGrowthRates([]MatchedPair{
		matchedDepths(15, 18),
		matchedDepths(15, 18),
	}, 5)
	EstimateRemainingLife(rows, 80)
	ComputeSeverityScores(rows)
	for _, r := range rows {
		if r.SeverityScore != 0 {
			t.Errorf("score = %v, want 0 for degenerate columns", r.SeverityScore)
		}
	}
}

func TestGrowthSummary(t *testing.T) {
	pairs := []MatchedPair{
		matchedDepths(10, 15),
		matchedDepths(20, 22),
		matchedDepths(30, 28),
	}
	rows, _ := ComputeGrowthRates(pairs, 5)
	summaries := GrowthSummary(rows)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 type summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.FeatureType != TypeMetalLoss || s.Count != 3 {
		t.Errorf("summary = %+v", s)
	}
	if math.Abs(s.MaxGrowth-1.0) > 1e-9 {
		t.Errorf("max growth = %v, want 1", s.MaxGrowth)
	}
	if math.Abs(s.PctNegative-100.0/3.0) > 1e-6 {
		t.Errorf("pct negative = %v, want one third", s.PctNegative)
	}
}
