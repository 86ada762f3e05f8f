package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/grid"
)

// AssetsHost serves the echarts javascript referenced by rendered pages.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func axisLabels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func squareHeatmap(title, subtitle, series string, desc grid.Descriptor, squares []grid.Square, value func(grid.Square) (float64, bool)) *charts.HeatMap {
	n := desc.SquaresPerRow
	data := make([]opts.HeatMapData, 0, len(squares))
	hi := 0.0
	for _, sq := range squares {
		v, ok := value(sq)
		if !ok || math.IsNaN(v) {
			continue
		}
		hi = math.Max(hi, v)
		// Image row 0 is the top row.
		data = append(data, opts.HeatMapData{Value: [3]interface{}{sq.Col, n - 1 - sq.Cell.Row, v}})
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "720px", Height: "720px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: axisLabels(n), Name: "Column"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: axisLabels(n), Name: "Row"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries(series, data)
	return hm
}

// RenderSquareHeatmap renders two grids of one recording: track counts of
// every square and Tau of the selected squares.
func RenderSquareHeatmap(w io.Writer, title string, desc grid.Descriptor, squares []grid.Square) error {
	if len(squares) == 0 {
		return ErrNoData
	}
	selected := 0
	for _, sq := range squares {
		if sq.Selected {
			selected++
		}
	}
	sub := fmt.Sprintf("%dx%d squares, %d selected", desc.SquaresPerRow, desc.SquaresPerRow, selected)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(
		squareHeatmap(title+" tracks", sub, "tracks", desc, squares, func(s grid.Square) (float64, bool) {
			return float64(s.NrTracks), true
		}),
		squareHeatmap(title+" tau", sub, "tau (ms)", desc, squares, func(s grid.Square) (float64, bool) {
			return s.Tau, s.Selected
		}),
	)
	return page.Render(w)
}

// WriteSquareHeatmap writes RenderSquareHeatmap output to path.
func WriteSquareHeatmap(fsys fsutil.FileSystem, path, title string, desc grid.Descriptor, squares []grid.Square) error {
	return writeFile(fsys, path, func(w io.Writer) error {
		return RenderSquareHeatmap(w, title, desc, squares)
	})
}

// SweepBar is one sweep run in the summary chart.
type SweepBar struct {
	Case    string
	Seconds float64
	OK      bool
}

// RenderSweepSummary renders a bar chart of run durations, split into
// successful and failed runs.
func RenderSweepSummary(w io.Writer, title string, runs []SweepBar) error {
	if len(runs) == 0 {
		return ErrNoData
	}
	cases := make([]string, len(runs))
	ok := make([]opts.BarData, len(runs))
	failed := make([]opts.BarData, len(runs))
	nFailed := 0
	for i, r := range runs {
		cases[i] = r.Case
		if r.OK {
			ok[i] = opts.BarData{Value: r.Seconds}
			failed[i] = opts.BarData{Value: 0}
		} else {
			nFailed++
			ok[i] = opts.BarData{Value: 0}
			failed[i] = opts.BarData{Value: r.Seconds}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d runs, %d failed", len(runs), nFailed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Duration (s)"}),
	)
	bar.SetXAxis(cases).
		AddSeries("ok", ok, charts.WithBarChartOpts(opts.BarChart{Stack: "runs"})).
		AddSeries("failed", failed, charts.WithBarChartOpts(opts.BarChart{Stack: "runs"}))
	return bar.Render(w)
}

// WriteSweepSummary writes RenderSweepSummary output to path.
func WriteSweepSummary(fsys fsutil.FileSystem, path, title string, runs []SweepBar) error {
	return writeFile(fsys, path, func(w io.Writer) error {
		return RenderSweepSummary(w, title, runs)
	})
}
