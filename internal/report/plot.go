// Package report renders diagnostic plots: PNG duration-fit charts with
// gonum/plot and interactive HTML charts with go-echarts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/spt.report/internal/fit"
	"github.com/banshee-data/spt.report/internal/fsutil"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to plot")

var (
	pointColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	curveColor = color.RGBA{R: 220, G: 60, B: 40, A: 255}
)

// DurationFitPlot draws the duration frequency histogram of a recording or
// square together with the fitted exponential decay.
func DurationFitPlot(x, y []float64, p fit.Params, title string) (*plot.Plot, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, ErrNoData
	}
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s - Track Duration (Tau %.0f ms, R² %.3f)", title, p.Tau(), fit.RSquared(x, y, p))
	pl.X.Label.Text = "Duration (s)"
	pl.Y.Label.Text = "Tracks"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.Color = pointColor
	scatter.Radius = vg.Points(2)
	pl.Add(scatter)
	pl.Legend.Add("observed", scatter)

	curve := plotter.NewFunction(p.Eval)
	curve.Color = curveColor
	curve.Width = vg.Points(1.5)
	curve.XMin, curve.XMax = x[0], x[len(x)-1]
	pl.Add(curve)
	pl.Legend.Add("fit", curve)

	pl.Legend.Top = true
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// WritePNG renders pl at 8x5 inches.
func WritePNG(w io.Writer, pl *plot.Plot) error {
	wt, err := pl.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// PlotDurationFit writes the duration fit chart to path as a PNG.
func PlotDurationFit(fsys fsutil.FileSystem, path string, x, y []float64, p fit.Params, title string) error {
	pl, err := DurationFitPlot(x, y, p, title)
	if err != nil {
		return err
	}
	return writeFile(fsys, path, func(w io.Writer) error { return WritePNG(w, pl) })
}

func writeFile(fsys fsutil.FileSystem, path string, render func(io.Writer) error) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return render(f)
}
