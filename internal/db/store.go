package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
)

// AnalysisStore persists comparison results so past analyses can be
// queried without re-running the pipeline.
type AnalysisStore struct {
	db *DB
}

func NewAnalysisStore(db *DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// AnalysisRunRecord is one stored pipeline run, as read back from the
// analysis_runs table.
type AnalysisRunRecord struct {
	ID              string
	RunIDA          string
	RunIDB          string
	YearsApart      float64
	AlignmentMethod string
	Degraded        bool
	NControlPoints  int
	NMatched        int
	NMissing        int
	NNew            int
	NClusters       int
	ParamsJSON      string
	StartedAtNs     int64
}

// StartedAt converts the stored nanosecond timestamp back to time.Time.
func (r *AnalysisRunRecord) StartedAt() time.Time {
	return time.Unix(0, r.StartedAtNs)
}

// PairRecord is one stored matched pair with its growth columns. Optional
// columns come back as nil when the source measurement was missing.
type PairRecord struct {
	FeatureIDA          string
	FeatureIDB          string
	FeatureType         string
	Status              string
	SegmentID           int
	DistanceA           float64
	CorrectedDistanceB  float64
	DeltaDistFt         float64
	ClockDegA           *float64
	ClockDegB           *float64
	DepthPctA           *float64
	DepthPctB           *float64
	Cost                float64
	DepthGrowthPctPerYr *float64
	DepthRateMilsPerYr  *float64
	RemainingLifeYr     *float64
	NegativeGrowth      bool
	AlreadyCritical     bool
	SeverityScore       float64
	ClusterID           int
}

// UnmatchedRecord is one stored missing or new feature.
type UnmatchedRecord struct {
	FeatureID   string
	Status      string
	FeatureType string
	Distance    float64
	ClockDeg    *float64
	DepthPct    *float64
}

// TrackRecord is one stored multi-run anomaly track.
type TrackRecord struct {
	TrackID            string
	NRuns              int
	BestModel          string
	GrowthRatePctPerYr *float64
	ProjectedDepthPct  *float64
	RemainingLifeYr    *float64
	Accelerating       bool
	RateChangePct      *float64
}

// SaveAnalysis writes one pipeline result, its growth rows, and its
// unmatched features in a single transaction. Returns the analysis ID.
func (s *AnalysisStore) SaveAnalysis(res *ili.PipelineResult) (string, error) {
	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (
			id, run_id_a, run_id_b, years_apart, alignment_method,
			degraded, n_control_points, n_matched, n_missing, n_new,
			n_clusters, params_json, started_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.AnalysisID,
		res.RunIDA,
		res.RunIDB,
		res.YearsApart,
		string(res.Alignment.Method),
		res.Alignment.Degraded,
		len(res.Alignment.Matched),
		len(res.Match.Matched),
		len(res.Match.Missing),
		len(res.Match.New),
		res.ClusterCount,
		string(paramsJSON),
		res.StartedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert analysis run: %w", err)
	}

	pairStmt, err := tx.Prepare(`
		INSERT INTO matched_pairs (
			id, analysis_id, feature_id_a, feature_id_b, feature_type,
			status, segment_id, distance_a, corrected_distance_b,
			delta_dist_ft, clock_deg_a, clock_deg_b, depth_pct_a,
			depth_pct_b, match_cost, growth_pct_per_yr,
			depth_rate_mils_per_yr, remaining_life_yr, negative_growth,
			already_critical, severity_score, cluster_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare pair insert: %w", err)
	}
	defer pairStmt.Close()

	for i := range res.Growth {
		g := &res.Growth[i]
		_, err = pairStmt.Exec(
			uuid.New().String(),
			res.AnalysisID,
			g.FeatureIDA,
			g.FeatureIDB,
			g.FeatureType,
			string(g.Status),
			g.SegmentID,
			g.DistanceA,
			g.CorrectedDistanceB,
			g.DeltaDistFt,
			nullFloat64(g.ClockDegA),
			nullFloat64(g.ClockDegB),
			nullFloat64(g.DepthPctA),
			nullFloat64(g.DepthPctB),
			g.Cost,
			nullFloat64(g.DepthGrowthPctPerYr),
			nullFloat64(g.DepthRateMilsPerYr),
			nullFloat64(g.RemainingLifeYr),
			g.NegativeGrowth,
			g.AlreadyCritical,
			g.SeverityScore,
			g.ClusterID,
		)
		if err != nil {
			return "", fmt.Errorf("insert matched pair %s: %w", g.FeatureIDA, err)
		}
	}

	unmatchedStmt, err := tx.Prepare(`
		INSERT INTO unmatched_features (
			id, analysis_id, feature_id, status, feature_type,
			distance, clock_deg, depth_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare unmatched insert: %w", err)
	}
	defer unmatchedStmt.Close()

	insertUnmatched := func(features []ili.FeatureRecord, status ili.MatchStatus) error {
		for i := range features {
			f := &features[i]
			_, err := unmatchedStmt.Exec(
				uuid.New().String(),
				res.AnalysisID,
				f.FeatureID,
				string(status),
				f.FeatureType,
				f.EffectiveDistance(),
				nullFloat64(f.ClockDeg),
				nullFloat64(f.DepthPct),
			)
			if err != nil {
				return fmt.Errorf("insert unmatched feature %s: %w", f.FeatureID, err)
			}
		}
		return nil
	}

	if err := insertUnmatched(res.Match.Missing, ili.StatusMissing); err != nil {
		return "", err
	}
	if err := insertUnmatched(res.Match.New, ili.StatusNew); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit analysis: %w", err)
	}

	return res.AnalysisID, nil
}

// SaveTracks writes multi-run track results under an existing analysis.
func (s *AnalysisStore) SaveTracks(analysisID string, tracks []ili.TrackGrowth) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO anomaly_tracks (
			id, analysis_id, track_id, n_runs, best_model,
			growth_rate_pct_per_yr, projected_depth_pct,
			remaining_life_yr, accelerating, rate_change_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare track insert: %w", err)
	}
	defer stmt.Close()

	for i := range tracks {
		t := &tracks[i]
		rateChange := t.Acceleration.RateChangePct
		_, err = stmt.Exec(
			uuid.New().String(),
			analysisID,
			t.TrackID,
			t.NRuns,
			nullString(t.BestModel),
			nullFloat64(t.GrowthRatePctPerYr),
			nullFloat64(t.ProjectedDepthPct),
			nullFloat64(t.RemainingLifeYr),
			t.Acceleration.Accelerating,
			nullFloat64(&rateChange),
		)
		if err != nil {
			return fmt.Errorf("insert track %s: %w", t.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tracks: %w", err)
	}

	return nil
}

// GetAnalysisRun reads one stored run by ID.
func (s *AnalysisStore) GetAnalysisRun(id string) (*AnalysisRunRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, run_id_a, run_id_b, years_apart, alignment_method,
		       degraded, n_control_points, n_matched, n_missing, n_new,
		       n_clusters, params_json, started_at_ns
		FROM analysis_runs WHERE id = ?`, id)

	var rec AnalysisRunRecord
	var params sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.RunIDA,
		&rec.RunIDB,
		&rec.YearsApart,
		&rec.AlignmentMethod,
		&rec.Degraded,
		&rec.NControlPoints,
		&rec.NMatched,
		&rec.NMissing,
		&rec.NNew,
		&rec.NClusters,
		&params,
		&rec.StartedAtNs,
	)
	rec.ParamsJSON = params.String
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis run: %w", err)
	}

	return &rec, nil
}

// ListAnalysisRuns returns all stored runs, newest first.
func (s *AnalysisStore) ListAnalysisRuns() ([]AnalysisRunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id_a, run_id_b, years_apart, alignment_method,
		       degraded, n_control_points, n_matched, n_missing, n_new,
		       n_clusters, params_json, started_at_ns
		FROM analysis_runs ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	defer rows.Close()

	var recs []AnalysisRunRecord
	for rows.Next() {
		var rec AnalysisRunRecord
		var params sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.RunIDA,
			&rec.RunIDB,
			&rec.YearsApart,
			&rec.AlignmentMethod,
			&rec.Degraded,
			&rec.NControlPoints,
			&rec.NMatched,
			&rec.NMissing,
			&rec.NNew,
			&rec.NClusters,
			&params,
			&rec.StartedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		rec.ParamsJSON = params.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis runs: %w", err)
	}

	return recs, nil
}

// ListPairs returns the stored growth rows for one analysis, ordered by
// severity descending.
func (s *AnalysisStore) ListPairs(analysisID string) ([]PairRecord, error) {
	rows, err := s.db.Query(`
		SELECT feature_id_a, feature_id_b, feature_type, status,
		       segment_id, distance_a, corrected_distance_b, delta_dist_ft,
		       clock_deg_a, clock_deg_b, depth_pct_a, depth_pct_b,
		       match_cost, growth_pct_per_yr, depth_rate_mils_per_yr,
		       remaining_life_yr, negative_growth, already_critical,
		       severity_score, cluster_id
		FROM matched_pairs
		WHERE analysis_id = ?
		ORDER BY severity_score DESC`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query matched pairs: %w", err)
	}
	defer rows.Close()

	var recs []PairRecord
	for rows.Next() {
		var rec PairRecord
		var clockA, clockB, depthA, depthB sql.NullFloat64
		var growth, milsRate, life sql.NullFloat64
		err := rows.Scan(
			&rec.FeatureIDA,
			&rec.FeatureIDB,
			&rec.FeatureType,
			&rec.Status,
			&rec.SegmentID,
			&rec.DistanceA,
			&rec.CorrectedDistanceB,
			&rec.DeltaDistFt,
			&clockA,
			&clockB,
			&depthA,
			&depthB,
			&rec.Cost,
			&growth,
			&milsRate,
			&life,
			&rec.NegativeGrowth,
			&rec.AlreadyCritical,
			&rec.SeverityScore,
			&rec.ClusterID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan matched pair: %w", err)
		}
		rec.ClockDegA = fromNullFloat64(clockA)
		rec.ClockDegB = fromNullFloat64(clockB)
		rec.DepthPctA = fromNullFloat64(depthA)
		rec.DepthPctB = fromNullFloat64(depthB)
		rec.DepthGrowthPctPerYr = fromNullFloat64(growth)
		rec.DepthRateMilsPerYr = fromNullFloat64(milsRate)
		rec.RemainingLifeYr = fromNullFloat64(life)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matched pairs: %w", err)
	}

	return recs, nil
}

// ListUnmatched returns the stored missing and new features for one
// analysis, ordered by distance.
func (s *AnalysisStore) ListUnmatched(analysisID string) ([]UnmatchedRecord, error) {
	rows, err := s.db.Query(`
		SELECT feature_id, status, feature_type, distance, clock_deg, depth_pct
		FROM unmatched_features
		WHERE analysis_id = ?
		ORDER BY distance`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query unmatched features: %w", err)
	}
	defer rows.Close()

	var recs []UnmatchedRecord
	for rows.Next() {
		var rec UnmatchedRecord
		var clock, depth sql.NullFloat64
		err := rows.Scan(&rec.FeatureID, &rec.Status, &rec.FeatureType,
			&rec.Distance, &clock, &depth)
		if err != nil {
			return nil, fmt.Errorf("scan unmatched feature: %w", err)
		}
		rec.ClockDeg = fromNullFloat64(clock)
		rec.DepthPct = fromNullFloat64(depth)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unmatched features: %w", err)
	}

	return recs, nil
}

// ListTracks returns the stored multi-run tracks for one analysis.
func (s *AnalysisStore) ListTracks(analysisID string) ([]TrackRecord, error) {
	rows, err := s.db.Query(`
		SELECT track_id, n_runs, best_model, growth_rate_pct_per_yr,
		       projected_depth_pct, remaining_life_yr, accelerating,
		       rate_change_pct
		FROM anomaly_tracks
		WHERE analysis_id = ?
		ORDER BY track_id`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var recs []TrackRecord
	for rows.Next() {
		var rec TrackRecord
		var model sql.NullString
		var rate, projected, life, rateChange sql.NullFloat64
		err := rows.Scan(&rec.TrackID, &rec.NRuns, &model, &rate,
			&projected, &life, &rec.Accelerating, &rateChange)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if model.Valid {
			rec.BestModel = model.String
		}
		rec.GrowthRatePctPerYr = fromNullFloat64(rate)
		rec.ProjectedDepthPct = fromNullFloat64(projected)
		rec.RemainingLifeYr = fromNullFloat64(life)
		rec.RateChangePct = fromNullFloat64(rateChange)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	return recs, nil
}

// Helper functions for nullable values

// nullFloat64 maps nil and non-finite values to SQL NULL. Remaining life
// is +Inf for non-growing anomalies, which sqlite cannot store.
func nullFloat64(f *float64) interface{} {
	if f == nil || math.IsInf(*f, 0) || math.IsNaN(*f) {
		return nil
	}
	return *f
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func fromNullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
