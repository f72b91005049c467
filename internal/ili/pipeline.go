package ili

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// PipelineParams bundles the tuning knobs for a full two-run comparison.
type PipelineParams struct {
	Match   MatchParams   `json:"match"`
	Growth  GrowthParams  `json:"growth"`
	Cluster ClusterParams `json:"cluster"`

	// EnableClustering controls the optional interaction-zone stage.
	EnableClustering bool `json:"enable_clustering"`
}

// DefaultPipelineParams returns production defaults for every stage.
func DefaultPipelineParams() PipelineParams {
	return PipelineParams{
		Match:   DefaultMatchParams(),
		Growth:  DefaultGrowthParams(),
		Cluster: DefaultClusterParams(),
	}
}

// PipelineResult is the complete output of one two-run comparison.
type PipelineResult struct {
	AnalysisID string
	StartedAt  time.Time
	RunIDA     string
	RunIDB     string
	YearsApart float64
	Params     PipelineParams

	Alignment AlignmentResult
	Match     MatchResult
	Growth    []GrowthRow
	ByType    []TypeSummary

	ClusterCount   int
	ClusterMetrics []ClusterMetrics
}

// RunPipeline executes the full two-run comparison: align Run B onto Run A,
// match anomalies segment by segment, compute growth and severity, and
// optionally cluster interaction zones. Inputs are not mutated.
func RunPipeline(runA, runB []FeatureRecord, yearsApart float64, p PipelineParams) (*PipelineResult, error) {
	if yearsApart <= 0 {
		return nil, fmt.Errorf("years between surveys must be positive, got %g", yearsApart)
	}
	if len(runA) == 0 || len(runB) == 0 {
		return nil, fmt.Errorf("both runs must contain at least one feature")
	}

	res := &PipelineResult{
		AnalysisID: uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		YearsApart: yearsApart,
		Params:     p,
		RunIDA:     runA[0].RunID,
		RunIDB:     runB[0].RunID,
	}
	monitoring.Logf("pipeline %s: run A %q (%d features) vs run B %q (%d features), %.2f years apart",
		res.AnalysisID, res.RunIDA, len(runA), res.RunIDB, len(runB), yearsApart)

	alignment := AlignRuns(runA, runB)
	res.Alignment = alignment

	match := MatchAnomalies(runA, alignment.Aligned, alignment.Matched, p.Match)
	res.Match = match

	growth, byType, err := RunGrowthAnalysis(match.Matched, yearsApart, p.Growth)
	if err != nil {
		return nil, fmt.Errorf("growth analysis: %w", err)
	}
	res.Growth = growth
	res.ByType = byType

	if p.EnableClustering {
		res.ClusterCount = ClusterAnomalies(res.Growth, p.Cluster)
		res.ClusterMetrics = ComputeClusterMetrics(res.Growth)
	}

	monitoring.Logf("pipeline %s: %d matched, %d missing, %d new, %d clusters",
		res.AnalysisID, len(match.Matched), len(match.Missing), len(match.New), res.ClusterCount)
	return res, nil
}
