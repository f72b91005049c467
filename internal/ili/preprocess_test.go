package ili

import (
	"math"
	"testing"
)

func TestClockToDegrees(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12:00", 0},
		{"3:00", 90},
		{"6:00", 180},
		{"9:00", 270},
		{"4:30", 135},
		{"1:15", 37.5},
		{"4.5", 135}, // plain numeric hours
		{"0", 0},
		{"13:00", 30}, // wraps past 12
	}
	for _, c := range cases {
		got := ClockToDegrees(c.in)
		if got == nil {
			t.Errorf("ClockToDegrees(%q) = nil, want %v", c.in, c.want)
			continue
		}
		if math.Abs(*got-c.want) > 1e-9 {
			t.Errorf("ClockToDegrees(%q) = %v, want %v", c.in, *got, c.want)
		}
	}
}

func TestClockToDegrees_Unparseable(t *testing.T) {
	for _, in := range []string{"", "  ", "noon", "3:xx", "1:2:3:4"} {
		if got := ClockToDegrees(in); got != nil {
			t.Errorf("ClockToDegrees(%q) = %v, want nil", in, *got)
		}
	}
}

func TestClockDistance_ShorterArc(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 90, 90},
		{90, 0, 90},
		{350, 10, 20}, // wraps through 12 o'clock
		{10, 350, 20},
		{0, 180, 180},
		{45, 45, 0},
	}
	for _, c := range cases {
		got := ClockDistance(&c.a, &c.b)
		if got == nil || math.Abs(*got-c.want) > 1e-9 {
			t.Errorf("ClockDistance(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestClockDistance_Unknown(t *testing.T) {
	v := 90.0
	if got := ClockDistance(nil, &v); got != nil {
		t.Errorf("expected nil for unknown side, got %v", *got)
	}
	if got := ClockDistance(&v, nil); got != nil {
		t.Errorf("expected nil for unknown side, got %v", *got)
	}
}

func TestNormalizeOrientation(t *testing.T) {
	cases := []struct{ in, want string }{
		{"internal", OrientID},
		{"INT", OrientID},
		{"id", OrientID},
		{"external", OrientOD},
		{"ext", OrientOD},
		{"OD", OrientOD},
		{" od ", OrientOD},
		{"", ""},
		{"midwall", "MIDWALL"}, // unrecognized passes through upper-cased
	}
	for _, c := range cases {
		if got := NormalizeOrientation(c.in); got != c.want {
			t.Errorf("NormalizeOrientation(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeFeatureType(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Girth Weld", TypeGirthWeld},
		{"GIRTH WELD ANOMALY", TypeGirthWeldAnomaly}, // longer pattern wins
		{"Metal Loss", TypeMetalLoss},
		{"Cluster", TypeMetalLoss},
		{"Metal Loss Manufacturing", TypeManufacturing},
		{"Dent", TypeDent},
		{"Field Bend", TypeBend},
		{"Stopple Tee", TypeTee},
		{"Above Ground Marker", TypeAGM},
		{"", TypeUnknown},
		{"mystery event", TypeOther},
	}
	for _, c := range cases {
		if got := NormalizeFeatureType(c.in); got != c.want {
			t.Errorf("NormalizeFeatureType(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTypesCompatible(t *testing.T) {
	if !TypesCompatible(TypeMetalLoss, TypeMetalLoss) {
		t.Error("identical types must be compatible")
	}
	if TypesCompatible(TypeDent, TypeMetalLoss) {
		t.Error("dent and metal loss must never be compatible")
	}
	if TypesCompatible(TypeMetalLoss, TypeDent) {
		t.Error("compatibility must be symmetric for the dent gate")
	}
	if !TypesCompatible(TypeOther, TypeOther) {
		t.Error("unlisted identical types must still be compatible")
	}
}
