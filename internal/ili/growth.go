package ili

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
	"github.com/sujitk-cyber/pipe-align-predict/internal/units"
)

// Growth and severity analysis over matched anomaly pairs.

// GrowthParams gathers the growth-analysis thresholds.
type GrowthParams struct {
	CriticalDepthPct  float64 // wall-loss % at which repair is needed
	ForecastYears     float64 // projection horizon
	AccelThresholdPct float64 // relative rate change flagged as accelerating
}

// DefaultGrowthParams returns the documented defaults.
func DefaultGrowthParams() GrowthParams {
	return GrowthParams{
		CriticalDepthPct:  80.0,
		ForecastYears:     5.0,
		AccelThresholdPct: defaultAccelThresholdPct,
	}
}

// Severity weighting: growth rate, current depth, and urgency (inverse
// remaining life) in that order.
const (
	severityWeightGrowth    = 0.40
	severityWeightDepth     = 0.35
	severityWeightRemaining = 0.25
)

// ComputeGrowthRates converts matched pairs into growth rows with depth,
// length, and width rates. yearsBetween must be positive; a non-positive
// value is an input error.
func ComputeGrowthRates(matched []MatchedPair, yearsBetween float64) ([]GrowthRow, error) {
	if yearsBetween <= 0 {
		return nil, fmt.Errorf("years between runs must be positive, got %g", yearsBetween)
	}

	rows := make([]GrowthRow, 0, len(matched))
	negative := 0
	for _, m := range matched {
		row := GrowthRow{MatchedPair: m, ClusterID: -1}

		if m.DepthPctA != nil && m.DepthPctB != nil {
			rate := (*m.DepthPctB - *m.DepthPctA) / yearsBetween
			row.DepthGrowthPctPerYr = &rate
			row.NegativeGrowth = rate < 0
			if row.NegativeGrowth {
				negative++
			}
			// Wall thickness lets the rate be expressed in mils.
			if m.WallThicknessA != nil && *m.WallThicknessA > 0 {
				wt := *m.WallThicknessA
				row.DepthMilsA = ptrFloat64(units.PctToMils(*m.DepthPctA, wt))
				row.DepthMilsB = ptrFloat64(units.PctToMils(*m.DepthPctB, wt))
				row.DepthRateMilsPerYr = ptrFloat64(units.PctToMils(*m.DepthPctB-*m.DepthPctA, wt) / yearsBetween)
			}
		}
		if m.LengthA != nil && m.LengthB != nil {
			rate := (*m.LengthB - *m.LengthA) / yearsBetween
			row.LengthGrowthInPerYr = &rate
		}
		if m.WidthA != nil && m.WidthB != nil {
			rate := (*m.WidthB - *m.WidthA) / yearsBetween
			row.WidthGrowthInPerYr = &rate
		}

		rows = append(rows, row)
	}

	monitoring.Logf("growth: rates computed for %d pairs, %d negative-growth flagged", len(rows), negative)
	return rows, nil
}

// remainingLife implements the two-run remaining-life rule: already at or
// past critical depth means 0; non-positive growth means infinite life.
func remainingLife(depthB, rate, criticalDepthPct float64) float64 {
	if depthB >= criticalDepthPct {
		return 0
	}
	if rate <= 0 {
		return math.Inf(1)
	}
	return (criticalDepthPct - depthB) / rate
}

// EstimateRemainingLife fills RemainingLifeYr, AlreadyCritical, and the
// fixed-threshold YearsTo80Pct convenience column on each row in place.
func EstimateRemainingLife(rows []GrowthRow, criticalDepthPct float64) {
	critical := 0
	for i := range rows {
		row := &rows[i]
		if row.DepthPctB == nil {
			continue
		}
		depthB := *row.DepthPctB
		row.AlreadyCritical = depthB >= criticalDepthPct
		if row.AlreadyCritical {
			critical++
		}
		if row.DepthGrowthPctPerYr == nil {
			continue
		}
		rate := *row.DepthGrowthPctPerYr
		row.RemainingLifeYr = ptrFloat64(remainingLife(depthB, rate, criticalDepthPct))
		row.YearsTo80Pct = ptrFloat64(remainingLife(depthB, rate, 80.0))
	}
	monitoring.Logf("growth: remaining life estimated, %d anomalies already at or above %.0f%% WT",
		critical, criticalDepthPct)
}

// ForecastDepth projects depth forward by forecastYears. Negative growth is
// not extrapolated: shrinking anomalies keep their current depth, the
// conservative reading of likely measurement noise.
func ForecastDepth(rows []GrowthRow, forecastYears float64) {
	for i := range rows {
		row := &rows[i]
		if row.DepthPctB == nil || row.DepthGrowthPctPerYr == nil {
			continue
		}
		projected := *row.DepthPctB
		if *row.DepthGrowthPctPerYr > 0 {
			projected += *row.DepthGrowthPctPerYr * forecastYears
		}
		row.ProjectedDepthPct = ptrFloat64(projected)
	}
}

// minMaxNormalize scales values to [0,1]; an all-equal column normalizes
// to zero rather than dividing by an epsilon range.
func minMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo := floats.Min(values)
	hi := floats.Max(values)
	if hi-lo < 1e-12 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// ComputeSeverityScores fills SeverityScore on every row and sorts the
// slice descending by score. The score min-max normalizes growth rate
// (floored at zero), current depth, and inverse remaining life within the
// current result set, then combines them 0.4/0.35/0.25 and scales to 0-100.
// The resulting order is the dig-list priority.
func ComputeSeverityScores(rows []GrowthRow) {
	if len(rows) == 0 {
		return
	}

	growth := make([]float64, len(rows))
	depth := make([]float64, len(rows))
	invRemaining := make([]float64, len(rows))
	for i := range rows {
		if rows[i].DepthGrowthPctPerYr != nil && *rows[i].DepthGrowthPctPerYr > 0 {
			growth[i] = *rows[i].DepthGrowthPctPerYr
		}
		if rows[i].DepthPctB != nil {
			depth[i] = *rows[i].DepthPctB
		}
		if r := rows[i].RemainingLifeYr; r != nil && *r > 0 && !math.IsInf(*r, 1) {
			invRemaining[i] = 1.0 / *r
		}
	}

	growthN := minMaxNormalize(growth)
	depthN := minMaxNormalize(depth)
	remainingN := minMaxNormalize(invRemaining)

	for i := range rows {
		score := (severityWeightGrowth*growthN[i] +
			severityWeightDepth*depthN[i] +
			severityWeightRemaining*remainingN[i]) * 100.0
		rows[i].SeverityScore = math.Round(score*100) / 100
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SeverityScore > rows[j].SeverityScore
	})
}

// GrowthSummary computes per-feature-type growth statistics over rows that
// have a depth rate.
func GrowthSummary(rows []GrowthRow) []TypeSummary {
	byType := make(map[string][]float64)
	for _, row := range rows {
		if row.DepthGrowthPctPerYr == nil {
			continue
		}
		byType[row.FeatureType] = append(byType[row.FeatureType], *row.DepthGrowthPctPerYr)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	summaries := make([]TypeSummary, 0, len(types))
	for _, t := range types {
		rates := byType[t]
		sorted := make([]float64, len(rates))
		copy(sorted, rates)
		sort.Float64s(sorted)

		negative := 0
		for _, r := range rates {
			if r < 0 {
				negative++
			}
		}

		s := TypeSummary{
			FeatureType:  t,
			Count:        len(rates),
			MeanGrowth:   stat.Mean(rates, nil),
			MedianGrowth: stat.Quantile(0.5, stat.Empirical, sorted, nil),
			MaxGrowth:    floats.Max(rates),
			PctNegative:  float64(negative) / float64(len(rates)) * 100.0,
		}
		if len(rates) > 1 {
			s.StdGrowth = stat.StdDev(rates, nil)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// RunGrowthAnalysis runs the full two-run growth stage: rates, remaining
// life, forecast, severity ordering, and the per-type summary.
func RunGrowthAnalysis(matched []MatchedPair, yearsBetween float64, p GrowthParams) ([]GrowthRow, []TypeSummary, error) {
	rows, err := ComputeGrowthRates(matched, yearsBetween)
	if err != nil {
		return nil, nil, err
	}
	EstimateRemainingLife(rows, p.CriticalDepthPct)
	ForecastDepth(rows, p.ForecastYears)
	ComputeSeverityScores(rows)
	return rows, GrowthSummary(rows), nil
}
