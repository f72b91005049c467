package ili

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Preprocessing normalizers for the three free-text-ish attributes vendors
// report inconsistently: clock position, orientation, and feature type.
// All pure functions.

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ClockToDegrees converts a clock-position string to degrees on [0, 360).
// Convention: 12:00 (top of pipe) = 0 deg, increasing clockwise, so
// 3:00 = 90, 6:00 = 180, 9:00 = 270. Accepts "4:30" style strings and
// plain numeric hours ("4.5" -> 135). Returns nil for unparseable input.
func ClockToDegrees(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	var hours float64
	if m := clockPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		hours = float64(h) + float64(min)/60.0
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		hours = v
	}

	hours = math.Mod(hours, 12.0)
	if hours < 0 {
		hours += 12.0
	}
	deg := hours * 30.0 // 360 deg / 12 hours
	return &deg
}

// ClockDistance returns the shorter arc between two circumferential
// positions in degrees (range 0-180), or nil when either side is unknown.
func ClockDistance(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	diff := math.Mod(math.Abs(*a-*b), 360.0)
	d := math.Min(diff, 360.0-diff)
	return &d
}

// NormalizeOrientation maps vendor orientation labels onto OrientID /
// OrientOD. Unrecognized non-empty labels pass through upper-cased so they
// can still be compared; empty input means unknown.
func NormalizeOrientation(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "":
		return ""
	case "ID", "INTERNAL", "INT":
		return OrientID
	case "OD", "EXTERNAL", "EXT":
		return OrientOD
	}
	return s
}

// featureTypeMap maps lowercase vendor event descriptions (exact or
// substring) to normalized categories.
var featureTypeMap = map[string]string{
	"girth weld":                 TypeGirthWeld,
	"girthweld":                  TypeGirthWeld,
	"girth weld anomaly":         TypeGirthWeldAnomaly,
	"metal loss":                 TypeMetalLoss,
	"cluster":                    TypeMetalLoss, // clusters are grouped metal loss
	"dent":                       TypeDent,
	"bend":                       TypeBend,
	"field bend":                 TypeBend,
	"valve":                      TypeValve,
	"tee":                        TypeTee,
	"stopple tee":                TypeTee,
	"tap":                        TypeTap,
	"flange":                     TypeFlange,
	"support":                    TypeSupport,
	"attachment":                 TypeAttachment,
	"agm":                        TypeAGM,
	"above ground marker":        TypeAGM,
	"magnet":                     TypeMarker,
	"cathodic protection point":  TypeMarker,
	"sleeve":                     TypeSleeve,
	"composite wrap":             TypeCompositeWrap,
	"repair marker":              TypeRepairMarker,
	"recoat":                     TypeRecoat,
	"casing":                     TypeCasing,
	"metal loss manufacturing":   TypeManufacturing,
	"metal loss-manufacturing":   TypeManufacturing,
	"seam weld manufacturing":    TypeManufacturing,
	"seam weld anomaly":          TypeSeamWeldAnomaly,
	"seam weld dent":             TypeDent,
	"area start":                 TypeAreaMarker,
	"area end":                   TypeAreaMarker,
	"start ":                     TypeAreaMarker,
	"end ":                       TypeAreaMarker,
}

// featureTypePatterns holds the map keys sorted longest-first so the most
// specific pattern wins on substring matches ("girth weld anomaly" before
// "girth weld").
var featureTypePatterns = func() []string {
	keys := make([]string, 0, len(featureTypeMap))
	for k := range featureTypeMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// NormalizeFeatureType maps a raw event description to a normalized
// category. Empty input yields TypeUnknown; unmatched input TypeOther.
func NormalizeFeatureType(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return TypeUnknown
	}
	for _, pattern := range featureTypePatterns {
		if lower == pattern || strings.Contains(lower, pattern) {
			return featureTypeMap[pattern]
		}
	}
	return TypeOther
}

// TypesCompatible reports whether two normalized feature types may be
// matched across runs.
func TypesCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if compat, ok := CompatibleTypes[a]; ok {
		return compat[b]
	}
	return false
}
