package ili

import (
	"fmt"
	"math"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// Multi-run tracking: chains pairwise matched tables for consecutive survey
// pairs into persistent anomaly tracks, then runs non-linear growth
// analysis per track.

// defaultAccelThresholdPct is the relative rate change (percent) above
// which the two most recent interval rates count as accelerating or
// decelerating.
const defaultAccelThresholdPct = 50.0

// AccelerationResult describes the rate trend over the two most recent
// consecutive intervals.
type AccelerationResult struct {
	Accelerating  bool
	RateChangePct float64
	Description   string
}

// TrackGrowth is the per-track outcome of multi-run growth analysis.
// BestModel is empty when every candidate model failed ("no model").
type TrackGrowth struct {
	TrackID            string
	NRuns              int
	BestModel          string
	GrowthRatePctPerYr *float64
	ProjectedDepthPct  *float64
	RemainingLifeYr    *float64
	RSS                *float64
	BIC                *float64
	Acceleration       AccelerationResult
}

// BuildTracks chains pairwise match tables into tracks. pairMatches[i]
// holds the matches between runs i and i+1; runIDs is the ordered list of
// all run identifiers (len(pairMatches)+1 entries).
//
// Chaining is greedy and forward-only: a match extends the track whose most
// recent identifier equals the match's A-side identifier, otherwise it
// seeds a new track. Earlier assignments are never revisited, and tracks
// are never split or merged. Known limitation: a feature that disappears
// for one survey and reappears later yields two separate tracks.
func BuildTracks(pairMatches [][]MatchedPair, runIDs []string) ([]Track, error) {
	if len(runIDs) != len(pairMatches)+1 {
		return nil, fmt.Errorf("got %d run ids for %d pair tables, want %d",
			len(runIDs), len(pairMatches), len(pairMatches)+1)
	}
	nRuns := len(runIDs)
	if len(pairMatches) == 0 || len(pairMatches[0]) == 0 {
		return nil, nil
	}

	var tracks []Track
	newTrack := func() *Track {
		tracks = append(tracks, Track{
			TrackID:    len(tracks),
			FeatureIDs: make([]string, nRuns),
			Depths:     make([]*float64, nRuns),
		})
		return &tracks[len(tracks)-1]
	}

	// First pair seeds one track per match.
	for _, m := range pairMatches[0] {
		t := newTrack()
		t.FeatureIDs[0] = m.FeatureIDA
		t.FeatureIDs[1] = m.FeatureIDB
		t.Depths[0] = m.DepthPctA
		t.Depths[1] = m.DepthPctB
		t.DistanceA = ptrFloat64(m.DistanceA)
	}

	// Subsequent pairs extend the track whose slot for the pair's A run
	// holds the match's A-side identifier.
	for pairIdx := 1; pairIdx < len(pairMatches); pairIdx++ {
		aSlot := pairIdx
		bSlot := pairIdx + 1
		for _, m := range pairMatches[pairIdx] {
			extended := false
			for i := range tracks {
				if tracks[i].FeatureIDs[aSlot] == m.FeatureIDA && m.FeatureIDA != "" {
					tracks[i].FeatureIDs[bSlot] = m.FeatureIDB
					tracks[i].Depths[bSlot] = m.DepthPctB
					extended = true
					break
				}
			}
			if !extended {
				// The A-side feature was unmatched or new in the previous
				// pair, e.g. first observed mid-sequence.
				t := newTrack()
				t.FeatureIDs[aSlot] = m.FeatureIDA
				t.FeatureIDs[bSlot] = m.FeatureIDB
				t.Depths[aSlot] = m.DepthPctA
				t.Depths[bSlot] = m.DepthPctB
			}
		}
	}

	for i := range tracks {
		n := 0
		for _, id := range tracks[i].FeatureIDs {
			if id != "" {
				n++
			}
		}
		tracks[i].NDetections = n
	}

	monitoring.Logf("multirun: built %d anomaly tracks across %d runs", len(tracks), nRuns)
	return tracks, nil
}

// DetectAcceleration compares the two most recent consecutive-interval
// growth rates against a relative threshold (percent). A non-positive
// earlier rate followed by a positive later rate is treated as infinite
// acceleration.
func DetectAcceleration(rates []float64, thresholdPct float64) AccelerationResult {
	if thresholdPct <= 0 {
		thresholdPct = defaultAccelThresholdPct
	}
	if len(rates) < 2 {
		return AccelerationResult{Description: "insufficient intervals"}
	}

	earlier := rates[len(rates)-2]
	later := rates[len(rates)-1]

	if earlier <= 0 {
		if later > 0 {
			return AccelerationResult{
				Accelerating:  true,
				RateChangePct: math.Inf(1),
				Description:   "accelerating (from zero or negative rate)",
			}
		}
		return AccelerationResult{Description: "stable (not growing)"}
	}

	changePct := (later - earlier) / earlier * 100.0
	switch {
	case changePct > thresholdPct:
		return AccelerationResult{
			Accelerating:  true,
			RateChangePct: changePct,
			Description:   fmt.Sprintf("accelerating (+%.1f%%)", changePct),
		}
	case changePct < -thresholdPct:
		return AccelerationResult{
			RateChangePct: changePct,
			Description:   fmt.Sprintf("decelerating (%.1f%%)", changePct),
		}
	}
	return AccelerationResult{
		RateChangePct: changePct,
		Description:   fmt.Sprintf("stable (%.1f%%)", changePct),
	}
}

// MultiRunGrowthAnalysis fits growth models to one feature's depth history.
// times are years since the first survey; depths the per-survey depth
// percentages. With exactly two observations the result falls back to a
// plain rate reported as ModelLinear2pt; with three or more the candidate
// models compete on the information criterion. An empty BestModel means no
// candidate converged.
func MultiRunGrowthAnalysis(trackID string, times, depths []float64, p GrowthParams, criterion Criterion) TrackGrowth {
	result := TrackGrowth{TrackID: trackID, NRuns: len(times)}
	if len(times) != len(depths) || len(times) < 2 {
		return result
	}

	last := len(times) - 1
	if len(times) == 2 {
		span := times[1] - times[0]
		if span <= 0 {
			return result
		}
		rate := (depths[1] - depths[0]) / span
		result.BestModel = ModelLinear2pt
		result.GrowthRatePctPerYr = &rate
		projected := depths[1]
		if rate > 0 {
			projected += rate * p.ForecastYears
		}
		result.ProjectedDepthPct = &projected
		result.RemainingLifeYr = ptrFloat64(remainingLife(depths[1], rate, p.CriticalDepthPct))
		return result
	}

	sel := SelectBestModel(times, depths, criterion)
	if sel.Best == nil {
		monitoring.Logf("multirun: track %s: no growth model converged", trackID)
		return result
	}
	fit := sel.Best

	result.BestModel = fit.Name
	result.RSS = ptrFloat64(fit.RSS)
	result.BIC = ptrFloat64(fit.BIC)
	result.ProjectedDepthPct = ForecastNonlinear(fit, times[last], p.ForecastYears)
	result.RemainingLifeYr = ptrFloat64(NonlinearRemainingLife(fit, times[last], p.CriticalDepthPct))

	// Average observed rate over the tracked window, for reporting next to
	// the fitted curve.
	span := times[last] - times[0]
	if span > 0 {
		rate := (depths[last] - depths[0]) / span
		result.GrowthRatePctPerYr = &rate
	}
	return result
}

// AnalyzeTracks runs multi-run growth analysis over every track observed in
// all surveys, including acceleration detection from the consecutive
// interval rates. yearGaps[i] is the elapsed years between runs i and i+1.
func AnalyzeTracks(tracks []Track, yearGaps []float64, p GrowthParams, criterion Criterion) []TrackGrowth {
	times := make([]float64, len(yearGaps)+1)
	for i, gap := range yearGaps {
		times[i+1] = times[i] + gap
	}

	var analyses []TrackGrowth
	for _, t := range tracks {
		depths := make([]float64, 0, len(t.Depths))
		complete := true
		for _, d := range t.Depths {
			if d == nil {
				complete = false
				break
			}
			depths = append(depths, *d)
		}
		if !complete {
			continue
		}

		result := MultiRunGrowthAnalysis(fmt.Sprintf("%d", t.TrackID), times, depths, p, criterion)

		var rates []float64
		for i := 0; i < len(depths)-1; i++ {
			if yearGaps[i] > 0 {
				rates = append(rates, (depths[i+1]-depths[i])/yearGaps[i])
			}
		}
		result.Acceleration = DetectAcceleration(rates, p.AccelThresholdPct)
		analyses = append(analyses, result)
	}
	monitoring.Logf("multirun: growth analysis for %d complete tracks", len(analyses))
	return analyses
}
