package report

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
)

// maxSeverityBars caps the severity chart so a long pipeline does not
// produce an unreadable axis.
const maxSeverityBars = 20

// severityBar builds a bar chart of the highest-severity anomalies. Rows
// are expected pre-sorted by severity descending.
func severityBar(rows []ili.GrowthRow) *charts.Bar {
	n := len(rows)
	if n > maxSeverityBars {
		n = maxSeverityBars
	}

	x := make([]string, 0, n)
	y := make([]opts.BarData, 0, n)
	for i := 0; i < n; i++ {
		g := &rows[i]
		x = append(x, g.FeatureIDA)
		y = append(y, opts.BarData{Value: g.SeverityScore})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Anomaly Severity",
			Subtitle: fmt.Sprintf("top %d of %d matched anomalies", n, len(rows)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Feature ID", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Severity", Min: 0, Max: 100}),
	)
	bar.SetXAxis(x).
		AddSeries("severity", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	return bar
}

// growthScatter builds a scatter of growth rate against pipeline position,
// colored by severity.
func growthScatter(rows []ili.GrowthRow) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(rows))
	maxSeverity := 0.0
	for i := range rows {
		g := &rows[i]
		if g.DepthGrowthPctPerYr == nil {
			continue
		}
		if g.SeverityScore > maxSeverity {
			maxSeverity = g.SeverityScore
		}
		data = append(data, opts.ScatterData{
			Value: []interface{}{g.DistanceA, *g.DepthGrowthPctPerYr, g.SeverityScore},
		})
	}
	if maxSeverity == 0 {
		maxSeverity = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Corrosion Growth vs Position",
			Subtitle: fmt.Sprintf("%d anomalies with depth on both runs", len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (ft)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Growth (%wt/yr)", NameLocation: "middle", NameGap: 35}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSeverity),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#31688e", "#35b779", "#fde725", "#e05c5c"}},
		}),
	)

	scatter.AddSeries("anomalies", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	return scatter
}

// RenderCharts writes an HTML page with the severity bar chart and growth
// scatter for one analysis.
func RenderCharts(path string, rows []ili.GrowthRow) error {
	page := components.NewPage()
	page.AddCharts(severityBar(rows), growthScatter(rows))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}

	return nil
}
