package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
)

// SaveResidualsPlot renders alignment residuals against pipeline position
// as a PNG. A tight band around zero means the piecewise transform fits
// the control points well.
func SaveResidualsPlot(path string, residuals []ili.Residual) error {
	if len(residuals) == 0 {
		return fmt.Errorf("no residuals to plot")
	}

	p := plot.New()
	p.Title.Text = "Alignment Residuals"
	p.X.Label.Text = "Distance (ft)"
	p.Y.Label.Text = "Residual (ft)"

	pts := make(plotter.XYs, 0, len(residuals))
	for _, r := range residuals {
		pts = append(pts, plotter.XY{X: r.DistanceA, Y: r.ResidualFt})
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build residual scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)
	p.Legend.Add("control points", scatter)

	// Zero line for reference.
	zero := plotter.XYs{
		{X: residuals[0].DistanceA, Y: 0},
		{X: residuals[len(residuals)-1].DistanceA, Y: 0},
	}
	zeroLine, err := plotter.NewLine(zero)
	if err != nil {
		return fmt.Errorf("build zero line: %w", err)
	}
	zeroLine.Color = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	zeroLine.Width = vg.Points(1)
	p.Add(zeroLine)

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save residuals plot: %w", err)
	}

	return nil
}
