package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
)

func TestSaveResidualsPlot(t *testing.T) {
	residuals := []ili.Residual{
		{DistanceA: 0, DistanceB: 2, Corrected: 0.01, ResidualFt: 0.01},
		{DistanceA: 500, DistanceB: 503, Corrected: 499.98, ResidualFt: -0.02},
		{DistanceA: 1000, DistanceB: 1004, Corrected: 1000.03, ResidualFt: 0.03},
	}

	path := filepath.Join(t.TempDir(), "residuals.png")
	if err := SaveResidualsPlot(path, residuals); err != nil {
		t.Fatalf("SaveResidualsPlot failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected PNG output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestSaveResidualsPlot_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "residuals.png")
	if err := SaveResidualsPlot(path, nil); err == nil {
		t.Fatal("expected error for empty residuals")
	}
}
