// Package report writes analysis outputs: CSV tables, HTML charts, and
// alignment-quality plots.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
	"github.com/sujitk-cyber/pipe-align-predict/internal/units"
)

// writeCSV opens path, writes the header and rows, and flushes.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	return nil
}

func fmtFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}

func fmtClockPtr(deg *float64) string {
	if deg == nil {
		return ""
	}
	return units.FormatClock(*deg)
}

// fmtDist converts a distance from feet to the report unit before
// formatting. Survey data is always feet internally.
func fmtDist(ft float64, unit string) string {
	return fmtFloat(units.ConvertDistance(ft, unit))
}

// WriteMatchedCSV writes the growth table, one row per matched pair,
// preserving the input (severity) order. Distance columns are converted
// to unit; everything else keeps its native unit.
func WriteMatchedCSV(path string, rows []ili.GrowthRow, unit string) error {
	header := []string{
		"feature_id_a", "feature_id_b", "feature_type", "status",
		"segment_id", "distance_a_" + unit, "corrected_distance_b_" + unit,
		"delta_dist_" + unit, "clock_deg_a", "clock_deg_b", "clock_a", "clock_b",
		"depth_pct_a",
		"depth_pct_b", "depth_mils_a", "depth_mils_b",
		"wall_thickness_a_in", "wall_thickness_b_in", "match_cost",
		"growth_pct_per_yr", "depth_rate_mils_per_yr", "remaining_life_yr",
		"projected_depth_pct", "years_to_80pct", "negative_growth",
		"already_critical", "severity_score", "cluster_id",
	}

	records := make([][]string, 0, len(rows))
	for i := range rows {
		g := &rows[i]
		records = append(records, []string{
			g.FeatureIDA,
			g.FeatureIDB,
			g.FeatureType,
			string(g.Status),
			strconv.Itoa(g.SegmentID),
			fmtDist(g.DistanceA, unit),
			fmtDist(g.CorrectedDistanceB, unit),
			fmtDist(g.DeltaDistFt, unit),
			fmtPtr(g.ClockDegA),
			fmtPtr(g.ClockDegB),
			fmtClockPtr(g.ClockDegA),
			fmtClockPtr(g.ClockDegB),
			fmtPtr(g.DepthPctA),
			fmtPtr(g.DepthPctB),
			fmtPtr(g.DepthMilsA),
			fmtPtr(g.DepthMilsB),
			fmtPtr(g.WallThicknessA),
			fmtPtr(g.WallThicknessB),
			fmtFloat(g.Cost),
			fmtPtr(g.DepthGrowthPctPerYr),
			fmtPtr(g.DepthRateMilsPerYr),
			fmtPtr(g.RemainingLifeYr),
			fmtPtr(g.ProjectedDepthPct),
			fmtPtr(g.YearsTo80Pct),
			strconv.FormatBool(g.NegativeGrowth),
			strconv.FormatBool(g.AlreadyCritical),
			fmtFloat(g.SeverityScore),
			strconv.Itoa(g.ClusterID),
		})
	}

	return writeCSV(path, header, records)
}

// WriteUnmatchedCSV writes missing (Run A only) and new (Run B only)
// features into a single table distinguished by status.
func WriteUnmatchedCSV(path string, missing, newFeatures []ili.FeatureRecord, unit string) error {
	header := []string{
		"feature_id", "status", "feature_type", "distance_" + unit,
		"clock_deg", "clock", "orientation", "depth_pct", "length_in", "width_in",
	}

	appendFeatures := func(records [][]string, features []ili.FeatureRecord, status ili.MatchStatus) [][]string {
		for i := range features {
			f := &features[i]
			records = append(records, []string{
				f.FeatureID,
				string(status),
				f.FeatureType,
				fmtDist(f.EffectiveDistance(), unit),
				fmtPtr(f.ClockDeg),
				fmtClockPtr(f.ClockDeg),
				f.Orientation,
				fmtPtr(f.DepthPct),
				fmtPtr(f.LengthIn),
				fmtPtr(f.WidthIn),
			})
		}
		return records
	}

	records := make([][]string, 0, len(missing)+len(newFeatures))
	records = appendFeatures(records, missing, ili.StatusMissing)
	records = appendFeatures(records, newFeatures, ili.StatusNew)

	return writeCSV(path, header, records)
}

// WriteSegmentsCSV writes the piecewise alignment transform.
func WriteSegmentsCSV(path string, segments []ili.Segment) error {
	header := []string{
		"segment_id", "a_start_ft", "a_end_ft", "b_start_ft", "b_end_ft",
		"scale", "shift_ft",
	}

	records := make([][]string, 0, len(segments))
	for _, s := range segments {
		records = append(records, []string{
			strconv.Itoa(s.ID),
			fmtFloat(s.AStart),
			fmtFloat(s.AEnd),
			fmtFloat(s.BStart),
			fmtFloat(s.BEnd),
			fmtFloat(s.Scale),
			fmtFloat(s.Shift),
		})
	}

	return writeCSV(path, header, records)
}

// WriteResidualsCSV writes per-control-point alignment errors.
func WriteResidualsCSV(path string, residuals []ili.Residual) error {
	header := []string{"distance_a_ft", "distance_b_ft", "corrected_ft", "residual_ft"}

	records := make([][]string, 0, len(residuals))
	for _, r := range residuals {
		records = append(records, []string{
			fmtFloat(r.DistanceA),
			fmtFloat(r.DistanceB),
			fmtFloat(r.Corrected),
			fmtFloat(r.ResidualFt),
		})
	}

	return writeCSV(path, header, records)
}

// WriteTypeSummaryCSV writes per-feature-type growth statistics.
func WriteTypeSummaryCSV(path string, summaries []ili.TypeSummary) error {
	header := []string{
		"feature_type", "count", "mean_growth", "median_growth",
		"max_growth", "std_growth", "pct_negative",
	}

	records := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, []string{
			s.FeatureType,
			strconv.Itoa(s.Count),
			fmtFloat(s.MeanGrowth),
			fmtFloat(s.MedianGrowth),
			fmtFloat(s.MaxGrowth),
			fmtFloat(s.StdGrowth),
			fmtFloat(s.PctNegative),
		})
	}

	return writeCSV(path, header, records)
}

// WriteClustersCSV writes interaction-zone metrics.
func WriteClustersCSV(path string, clusters []ili.ClusterMetrics, unit string) error {
	header := []string{
		"cluster_id", "anomaly_count", "centroid_distance_" + unit, "span_" + unit,
		"avg_depth_pct", "total_loss_area_in2", "mean_growth_rate",
	}

	records := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		records = append(records, []string{
			strconv.Itoa(c.ClusterID),
			strconv.Itoa(c.AnomalyCount),
			fmtDist(c.CentroidDistance, unit),
			fmtDist(c.SpanFt, unit),
			fmtFloat(c.AverageDepthPct),
			fmtFloat(c.TotalLossAreaIn2),
			fmtFloat(c.MeanGrowthRate),
		})
	}

	return writeCSV(path, header, records)
}

// WriteTracksCSV writes multi-run track growth results.
func WriteTracksCSV(path string, tracks []ili.TrackGrowth) error {
	header := []string{
		"track_id", "n_runs", "best_model", "growth_rate_pct_per_yr",
		"projected_depth_pct", "remaining_life_yr", "rss", "bic",
		"accelerating", "rate_change_pct", "acceleration_note",
	}

	records := make([][]string, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		records = append(records, []string{
			t.TrackID,
			strconv.Itoa(t.NRuns),
			t.BestModel,
			fmtPtr(t.GrowthRatePctPerYr),
			fmtPtr(t.ProjectedDepthPct),
			fmtPtr(t.RemainingLifeYr),
			fmtPtr(t.RSS),
			fmtPtr(t.BIC),
			strconv.FormatBool(t.Acceleration.Accelerating),
			fmtFloat(t.Acceleration.RateChangePct),
			t.Acceleration.Description,
		})
	}

	return writeCSV(path, header, records)
}

// WriteAll writes the full two-run report set into dir, creating it if
// needed. Cluster and residual tables are skipped when empty. Segment and
// residual tables stay in feet regardless of unit, matching the alignment
// frame they describe.
func WriteAll(dir string, res *ili.PipelineResult, unit string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := WriteMatchedCSV(filepath.Join(dir, "matched.csv"), res.Growth, unit); err != nil {
		return err
	}
	if err := WriteUnmatchedCSV(filepath.Join(dir, "unmatched.csv"), res.Match.Missing, res.Match.New, unit); err != nil {
		return err
	}
	if err := WriteSegmentsCSV(filepath.Join(dir, "segments.csv"), res.Alignment.Segments); err != nil {
		return err
	}
	if err := WriteTypeSummaryCSV(filepath.Join(dir, "type_summary.csv"), res.ByType); err != nil {
		return err
	}
	if len(res.Alignment.Residuals) > 0 {
		if err := WriteResidualsCSV(filepath.Join(dir, "residuals.csv"), res.Alignment.Residuals); err != nil {
			return err
		}
	}
	if len(res.ClusterMetrics) > 0 {
		if err := WriteClustersCSV(filepath.Join(dir, "clusters.csv"), res.ClusterMetrics, unit); err != nil {
			return err
		}
	}

	monitoring.Logf("wrote report tables to %s (matched=%d missing=%d new=%d)",
		dir, len(res.Growth), len(res.Match.Missing), len(res.Match.New))

	return nil
}
