package ili

import "math"

// Feature type categories produced by NormalizeFeatureType. Raw vendor
// event descriptions are mapped onto these before anything else runs.
const (
	TypeGirthWeld        = "girth_weld"
	TypeGirthWeldAnomaly = "girth_weld_anomaly"
	TypeMetalLoss        = "metal_loss"
	TypeDent             = "dent"
	TypeBend             = "bend"
	TypeValve            = "valve"
	TypeTee              = "tee"
	TypeTap              = "tap"
	TypeFlange           = "flange"
	TypeSupport          = "support"
	TypeAttachment       = "attachment"
	TypeAGM              = "agm"
	TypeMarker           = "marker"
	TypeSleeve           = "sleeve"
	TypeCompositeWrap    = "composite_wrap"
	TypeRepairMarker     = "repair_marker"
	TypeRecoat           = "recoat"
	TypeCasing           = "casing"
	TypeManufacturing    = "manufacturing_anomaly"
	TypeSeamWeldAnomaly  = "seam_weld_anomaly"
	TypeAreaMarker       = "area_marker"
	TypeUnknown          = "unknown"
	TypeOther            = "other"
)

// Orientation of a feature relative to the pipe wall.
const (
	OrientID = "ID" // internal
	OrientOD = "OD" // external
)

// ControlPointTypes are the fixed, immobile feature categories used as
// coordinate references between runs. Everything else is a matchable anomaly.
var ControlPointTypes = map[string]bool{
	TypeGirthWeld: true,
	TypeValve:     true,
	TypeTee:       true,
	TypeTap:       true,
	TypeFlange:    true,
	TypeBend:      true,
}

// CompatibleTypes lists which normalized feature types may be matched to
// each other across runs. Identity is always implied; entries here extend
// it. The default map is identity-only, matching how operators treat
// cross-category matches (a dent never becomes metal loss).
var CompatibleTypes = map[string]map[string]bool{
	TypeMetalLoss:        {TypeMetalLoss: true},
	TypeDent:             {TypeDent: true},
	TypeManufacturing:    {TypeManufacturing: true},
	TypeGirthWeldAnomaly: {TypeGirthWeldAnomaly: true},
}

// FeatureRecord is one detected pipeline feature in one inspection run.
// Optional measurements use pointers; nil means the vendor did not report
// the value. Records are produced once by ingestion and never mutated by
// the core; alignment sets CorrectedDistance on a copy.
type FeatureRecord struct {
	RunID         string
	FeatureID     string
	Distance      float64 // feet along the pipeline, >= 0 after validation
	JointNumber   *int
	WeldOffset    *float64 // feet from nearest upstream weld
	ClockDeg      *float64 // [0, 360), 0 = 12 o'clock, clockwise
	FeatureType   string   // normalized category
	Orientation   string   // OrientID, OrientOD, or "" when unknown
	DepthPct      *float64 // percent of wall thickness
	LengthIn      *float64
	WidthIn       *float64
	WallThickness *float64 // inches

	// CorrectedDistance is the Run-B distance after piecewise alignment
	// into Run A's frame. Unset (nil) on Run-A records and raw inputs.
	CorrectedDistance *float64
}

// EffectiveDistance returns the corrected distance when alignment has run,
// otherwise the raw distance.
func (f *FeatureRecord) EffectiveDistance() float64 {
	if f.CorrectedDistance != nil {
		return *f.CorrectedDistance
	}
	return f.Distance
}

// IsControlPoint reports whether the feature is a fixed reference feature.
func (f *FeatureRecord) IsControlPoint() bool {
	return ControlPointTypes[f.FeatureType]
}

// ControlPointPair is a matched fixed feature across two runs.
type ControlPointPair struct {
	JointNumber *int
	DistanceA   float64
	DistanceB   float64
	FeatureType string
}

// Segment is one piece of the piecewise-linear distance transform, bounded
// in Run-B coordinate space. corrected = Scale*raw + Shift. Segments are
// contiguous, non-overlapping, and ordered by BStart; the first and last
// extend to -Inf / +Inf.
type Segment struct {
	ID     int
	AStart float64
	AEnd   float64
	BStart float64
	BEnd   float64
	Scale  float64
	Shift  float64
}

// Apply transforms a raw Run-B distance with this segment's coefficients,
// rounded to 4 decimals.
func (s Segment) Apply(rawDistance float64) float64 {
	return math.Round((s.Scale*rawDistance+s.Shift)*1e4) / 1e4
}

// Residual is the per-control-point alignment error, for quality reporting.
type Residual struct {
	DistanceA  float64
	DistanceB  float64
	Corrected  float64
	ResidualFt float64
}

// MatchStatus labels an accepted pair's confidence.
type MatchStatus string

const (
	StatusMatched   MatchStatus = "MATCHED"
	StatusUncertain MatchStatus = "UNCERTAIN"
	StatusMissing   MatchStatus = "MISSING" // Run-A feature with no match
	StatusNew       MatchStatus = "NEW"     // Run-B feature with no match
)

// MatchedPair is one (Run A, Run B) anomaly correspondence. Within one
// segment solve each side appears in at most one pair.
type MatchedPair struct {
	FeatureIDA string
	FeatureIDB string

	DistanceA          float64
	CorrectedDistanceB float64
	RawDistanceB       float64
	DeltaDistFt        float64

	ClockDegA     *float64
	ClockDegB     *float64
	DeltaClockDeg *float64

	FeatureType string
	Orientation string

	DepthPctA *float64
	DepthPctB *float64
	LengthA   *float64
	LengthB   *float64
	WidthA    *float64
	WidthB    *float64

	// Run A's wall thickness drives the mils conversions; run B's is
	// carried for reporting.
	WallThicknessA *float64
	WallThicknessB *float64

	Cost      float64
	SegmentID int
	Status    MatchStatus
}

// GrowthRow is a matched pair augmented with growth and severity columns.
// RemainingLifeYr is nil when depth data is missing and +Inf when the
// anomaly is not growing.
type GrowthRow struct {
	MatchedPair

	DepthGrowthPctPerYr *float64
	LengthGrowthInPerYr *float64
	WidthGrowthInPerYr  *float64
	NegativeGrowth      bool

	DepthMilsA         *float64
	DepthMilsB         *float64
	DepthRateMilsPerYr *float64

	RemainingLifeYr   *float64
	AlreadyCritical   bool
	ProjectedDepthPct *float64
	YearsTo80Pct      *float64

	SeverityScore float64

	// ClusterID is set by interaction-zone clustering; -1 means noise /
	// unclustered (also the value before clustering runs).
	ClusterID int
}

// TypeSummary is per-feature-type growth statistics.
type TypeSummary struct {
	FeatureType  string
	Count        int
	MeanGrowth   float64
	MedianGrowth float64
	MaxGrowth    float64
	StdGrowth    float64
	PctNegative  float64
}

// ClusterMetrics aggregates one interaction zone of matched anomalies.
type ClusterMetrics struct {
	ClusterID        int
	AnomalyCount     int
	CentroidDistance float64
	SpanFt           float64
	AverageDepthPct  float64
	TotalLossAreaIn2 float64
	MeanGrowthRate   float64
}

// Track is one physical anomaly's lineage across 3+ surveys: one slot per
// run, empty string where the feature was not observed. Tracks are
// write-once outputs of a pipeline execution.
type Track struct {
	TrackID     int
	FeatureIDs  []string   // len == number of runs
	Depths      []*float64 // depth per run where matched
	DistanceA   *float64   // Run-A distance from the seeding pair
	NDetections int
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
