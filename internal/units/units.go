// Package units provides shared constants and conversions for distance and
// depth units
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	Feet   = "ft"
	Meters = "m"
)

// ValidUnits contains all valid distance unit values
var ValidUnits = []string{Feet, Meters}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ft, m"
}

// ConvertDistance converts a distance from feet to the target units.
// Survey data stores distances in feet.
func ConvertDistance(distanceFt float64, targetUnits string) float64 {
	switch targetUnits {
	case Meters:
		return distanceFt * 0.3048
	case Feet:
		return distanceFt
	default:
		return distanceFt // default to feet if unknown unit
	}
}

// PctToMils converts a depth in percent of wall thickness to mils
// (thousandths of an inch) given the wall thickness in inches.
func PctToMils(depthPct, wallThicknessIn float64) float64 {
	return depthPct / 100.0 * wallThicknessIn * 1000.0
}

// FormatClock renders a circumferential position in degrees as a clock
// string, 0 deg = 12:00 increasing clockwise. Minutes are rounded to the
// nearest whole minute.
func FormatClock(deg float64) string {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	totalMinutes := int(math.Round(d / 360.0 * 720.0)) // 720 minutes per turn
	hours := totalMinutes / 60
	minutes := totalMinutes % 60
	if hours == 0 {
		hours = 12
	}
	return fmt.Sprintf("%d:%02d", hours, minutes)
}
