package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	if IsValid("furlong") {
		t.Error("IsValid(furlong) = true, want false")
	}
	if IsValid("") {
		t.Error("IsValid(\"\") = true, want false")
	}
}

func TestConvertDistance(t *testing.T) {
	tests := []struct {
		name   string
		ft     float64
		units  string
		expect float64
	}{
		{"feet passthrough", 100, Feet, 100},
		{"feet to meters", 100, Meters, 30.48},
		{"unknown unit defaults to feet", 100, "cubits", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertDistance(tt.ft, tt.units)
			if math.Abs(got-tt.expect) > 1e-9 {
				t.Errorf("ConvertDistance(%v, %q) = %v, want %v", tt.ft, tt.units, got, tt.expect)
			}
		})
	}
}

func TestPctToMils(t *testing.T) {
	// 15% of a 0.25 in wall is 37.5 mils.
	if got := PctToMils(15, 0.25); math.Abs(got-37.5) > 1e-9 {
		t.Errorf("PctToMils(15, 0.25) = %v, want 37.5", got)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		deg    float64
		expect string
	}{
		{0, "12:00"},
		{90, "3:00"},
		{180, "6:00"},
		{270, "9:00"},
		{135, "4:30"},
		{37.5, "1:15"},
		{-90, "9:00"}, // normalized into [0, 360)
	}
	for _, tt := range tests {
		if got := FormatClock(tt.deg); got != tt.expect {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.deg, got, tt.expect)
		}
	}
}
