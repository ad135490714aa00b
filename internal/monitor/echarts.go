package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/odometry/internal/odometry"
)

// RenderTrackChart writes an interactive HTML scatter of the driven path.
func RenderTrackChart(w io.Writer, title string, poses []odometry.Pose) error {
	track := make([]opts.ScatterData, 0, len(poses))
	for i, p := range poses {
		track = append(track, opts.ScatterData{Value: []interface{}{p.X, p.Y, i}})
	}

	subtitle := fmt.Sprintf("points=%d", len(poses))
	if n := len(poses); n > 0 {
		last := poses[n-1]
		subtitle = fmt.Sprintf("points=%d x=%.3f y=%.3f theta=%.3f", n, last.X, last.Y, last.Theta)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Odometry Track", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	scatter.AddSeries("track", track, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if n := len(poses); n > 0 {
		last := poses[n-1]
		scatter.AddSeries("current", []opts.ScatterData{{Value: []interface{}{last.X, last.Y, n - 1}}},
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render track chart: %w", err)
	}
	return nil
}
