// Package ingest reads vendor survey exports into the canonical feature
// schema: CSV parsing, column auto-detection per known vendor format, and
// row validation.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// Canonical field names resolved by column mapping.
const (
	colFeatureID     = "feature_id"
	colDistance      = "distance"
	colJointNumber   = "joint_number"
	colRelPosition   = "relative_position"
	colClockPosition = "clock_position"
	colFeatureType   = "feature_type"
	colOrientation   = "orientation"
	colDepthPercent  = "depth_percent"
	colLength        = "length"
	colWidth         = "width"
	colWallThickness = "wall_thickness"
)

// MappingConfigs lists the known vendor export formats. Each config maps a
// canonical field to candidate raw column names (normalized); the first
// candidate present wins. Detection picks the config resolving the most
// fields.
var MappingConfigs = map[string]map[string][]string{
	"2007_rosen": {
		colFeatureID:     {"j._no."},
		colDistance:      {"log_dist._[ft]"},
		colJointNumber:   {"j._no."},
		colRelPosition:   {"to_u/s_w._[ft]"},
		colClockPosition: {"o'clock"},
		colFeatureType:   {"event"},
		colOrientation:   {"internal"},
		colDepthPercent:  {"depth_[%]"},
		colLength:        {"length_[in]"},
		colWidth:         {"width_[in]"},
		colWallThickness: {"t_[in]"},
	},
	"2015_baker": {
		colFeatureID:     {"j._no."},
		colDistance:      {"log_dist._[ft]"},
		colJointNumber:   {"j._no."},
		colRelPosition:   {"to_u/s_w._[ft]"},
		colClockPosition: {"o'clock"},
		colFeatureType:   {"event_description"},
		colOrientation:   {"id/od"},
		colDepthPercent:  {"depth_[%]"},
		colLength:        {"length_[in]"},
		colWidth:         {"width_[in]"},
		colWallThickness: {"wt_[in]"},
	},
	"2022_entegra": {
		colFeatureID:     {"joint_number"},
		colDistance:      {"ili_wheel_count_[ft.]"},
		colJointNumber:   {"joint_number"},
		colRelPosition:   {"distance_to_u/s_gw_[ft]"},
		colClockPosition: {"o'clock_[hh:mm]"},
		colFeatureType:   {"event_description"},
		colOrientation:   {"id/od"},
		colDepthPercent:  {"metal_loss_depth_[%]"},
		colLength:        {"length_[in]"},
		colWidth:         {"width_[in]"},
		colWallThickness: {"wt_[in]"},
	},
}

// MappingInfo records how a run's columns were resolved, for the alignment
// report.
type MappingInfo struct {
	ConfigName string
	Resolved   map[string]string // canonical field -> raw header
	RawColumns []string
	RowCount   int
}

var underscoreRun = regexp.MustCompile(`_+`)

// normalizeColName lowercases a header and collapses whitespace and
// newlines to single underscores so headers from different exports compare
// equal.
func normalizeColName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	s = strings.ReplaceAll(s, " ", "_")
	return underscoreRun.ReplaceAllString(s, "_")
}

// autoDetectMapping scores every config against the normalized headers and
// returns the best config's name plus the resolved canonical->raw-header
// mapping.
func autoDetectMapping(headers []string) (string, map[string]string) {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = normalizeColName(h)
	}
	headerIdx := make(map[string]int, len(norm))
	for i, h := range norm {
		if _, seen := headerIdx[h]; !seen {
			headerIdx[h] = i
		}
	}

	bestName := ""
	bestScore := -1
	var bestResolved map[string]string
	for _, cfgName := range configNames() {
		cfg := MappingConfigs[cfgName]
		resolved := make(map[string]string)
		for canonical, candidates := range cfg {
			for _, cand := range candidates {
				if idx, ok := headerIdx[cand]; ok {
					resolved[canonical] = headers[idx]
					break
				}
			}
		}
		if len(resolved) > bestScore {
			bestScore = len(resolved)
			bestName = cfgName
			bestResolved = resolved
		}
	}
	monitoring.Logf("ingest: auto-detected mapping config %q (%d/%d fields)",
		bestName, bestScore, len(MappingConfigs[bestName]))
	return bestName, bestResolved
}

// configNames returns the config keys in a fixed order so detection ties
// resolve deterministically.
func configNames() []string {
	return []string{"2007_rosen", "2015_baker", "2022_entegra"}
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	t := strings.TrimSpace(s)
	if v, err := strconv.Atoi(t); err == nil {
		return &v
	}
	// Joint columns sometimes carry a numeric format like "120.0".
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		v := int(f)
		return &v
	}
	return nil
}

// LoadRun reads one survey export and returns validated canonical feature
// records. Rows with no parsable distance and rows with negative depth are
// dropped with a logged count. Duplicate feature identifiers get an
// ordinal suffix so downstream matching can treat IDs as unique.
func LoadRun(path, runID string) ([]ili.FeatureRecord, *MappingInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open run %s: %w", runID, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse run %s: %w", runID, err)
	}
	if len(rows) < 1 {
		return nil, nil, fmt.Errorf("run %s: empty file", runID)
	}

	headers := rows[0]
	configName, resolved := autoDetectMapping(headers)
	if _, ok := resolved[colDistance]; !ok {
		return nil, nil, fmt.Errorf("run %s: no distance column found (headers: %v)", runID, headers)
	}

	colIdx := make(map[string]int, len(resolved))
	for canonical, rawHeader := range resolved {
		for i, h := range headers {
			if h == rawHeader {
				colIdx[canonical] = i
				break
			}
		}
	}
	field := func(row []string, canonical string) (string, bool) {
		idx, ok := colIdx[canonical]
		if !ok || idx >= len(row) {
			return "", false
		}
		return row[idx], true
	}

	records := make([]ili.FeatureRecord, 0, len(rows)-1)
	seenIDs := make(map[string]int)
	droppedDistance, droppedDepth := 0, 0
	for i, row := range rows[1:] {
		rec := ili.FeatureRecord{RunID: runID}

		if raw, ok := field(row, colDistance); ok {
			if d := parseFloat(raw); d != nil {
				rec.Distance = *d
			} else {
				droppedDistance++
				continue
			}
		} else {
			droppedDistance++
			continue
		}

		if raw, ok := field(row, colFeatureID); ok && strings.TrimSpace(raw) != "" {
			rec.FeatureID = strings.TrimSpace(raw)
		} else {
			rec.FeatureID = fmt.Sprintf("%s_%d", runID, i)
		}
		if n := seenIDs[rec.FeatureID]; n > 0 {
			seenIDs[rec.FeatureID] = n + 1
			rec.FeatureID = fmt.Sprintf("%s_%d", rec.FeatureID, n)
		} else {
			seenIDs[rec.FeatureID] = 1
		}

		if raw, ok := field(row, colJointNumber); ok {
			rec.JointNumber = parseInt(raw)
		}
		if raw, ok := field(row, colRelPosition); ok {
			rec.WeldOffset = parseFloat(raw)
		}
		if raw, ok := field(row, colClockPosition); ok {
			rec.ClockDeg = ili.ClockToDegrees(raw)
		}
		if raw, ok := field(row, colFeatureType); ok {
			rec.FeatureType = ili.NormalizeFeatureType(raw)
		} else {
			rec.FeatureType = ili.TypeUnknown
		}
		if raw, ok := field(row, colOrientation); ok {
			rec.Orientation = ili.NormalizeOrientation(raw)
		}
		if raw, ok := field(row, colDepthPercent); ok {
			rec.DepthPct = parseFloat(raw)
		}
		if rec.DepthPct != nil && *rec.DepthPct < 0 {
			droppedDepth++
			continue
		}
		if raw, ok := field(row, colLength); ok {
			rec.LengthIn = parseFloat(raw)
		}
		if raw, ok := field(row, colWidth); ok {
			rec.WidthIn = parseFloat(raw)
		}
		if raw, ok := field(row, colWallThickness); ok {
			rec.WallThickness = parseFloat(raw)
		}

		records = append(records, rec)
	}

	if droppedDistance > 0 {
		monitoring.Logf("ingest: run %s: dropped %d rows with no distance", runID, droppedDistance)
	}
	if droppedDepth > 0 {
		monitoring.Logf("ingest: run %s: dropped %d rows with negative depth", runID, droppedDepth)
	}

	welds := 0
	for _, rec := range records {
		if rec.FeatureType == ili.TypeGirthWeld {
			welds++
		}
	}
	monitoring.Logf("ingest: run %s: %d rows kept (%d girth welds, %d other features)",
		runID, len(records), welds, len(records)-welds)

	info := &MappingInfo{
		ConfigName: configName,
		Resolved:   resolved,
		RawColumns: headers,
		RowCount:   len(records),
	}
	return records, info, nil
}
