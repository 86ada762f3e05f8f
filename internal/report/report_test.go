package report

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spt.report/internal/fit"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/grid"
)

func decay() ([]float64, []float64, fit.Params) {
	p := fit.Params{M: 500, T: 0.02, B: 5}
	var x, y []float64
	for i := 0.0; i < 200; i += 2 {
		x = append(x, i)
		y = append(y, p.Eval(i))
	}
	return x, y, p
}

func TestPlotDurationFit(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	x, y, p := decay()
	require.NoError(t, PlotDurationFit(fsys, "/out/R1-duration.png", x, y, p, "R1"))

	data, err := fsys.ReadFile("/out/R1-duration.png")
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestDurationFitPlotNoData(t *testing.T) {
	t.Parallel()

	_, err := DurationFitPlot(nil, nil, fit.Params{}, "empty")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = DurationFitPlot([]float64{1, 2}, []float64{1}, fit.Params{}, "mismatch")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRenderSquareHeatmap(t *testing.T) {
	t.Parallel()

	desc, err := grid.NewDescriptor(4, grid.DefaultImageSize)
	require.NoError(t, err)
	var squares []grid.Square
	for i, sq := range desc.NewSquares() {
		sq.NrTracks = 10 * (i + 1)
		if i == 3 {
			sq.Selected = true
			sq.Tau = 240
		}
		squares = append(squares, *sq)
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSquareHeatmap(&buf, "E1-R1", desc, squares))
	html := buf.String()
	assert.Contains(t, html, "E1-R1 tracks")
	assert.Contains(t, html, "2x2 squares, 1 selected")
	assert.Contains(t, html, AssetsHost)

	assert.ErrorIs(t, RenderSquareHeatmap(&buf, "none", desc, nil), ErrNoData)
}

func TestWriteSweepSummary(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	runs := []SweepBar{
		{Case: "Threshold-5", Seconds: 12, OK: true},
		{Case: "Threshold-6", Seconds: 3, OK: false},
	}
	require.NoError(t, WriteSweepSummary(fsys, "/proj/Sweep/Sweep Summary.html", "Sweep", runs))
	data, err := fsys.ReadFile("/proj/Sweep/Sweep Summary.html")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Threshold-6"))
	assert.Contains(t, string(data), "2 runs, 1 failed")

	assert.ErrorIs(t, RenderSweepSummary(&bytes.Buffer{}, "empty", nil), ErrNoData)
}

func TestHeatmapSkipsNaN(t *testing.T) {
	t.Parallel()

	desc, err := grid.NewDescriptor(1, grid.DefaultImageSize)
	require.NoError(t, err)
	sq := *desc.NewSquares()[0]
	sq.Selected = true
	require.True(t, math.IsNaN(sq.Tau))

	hm := squareHeatmap("t", "", "tau", desc, []grid.Square{sq}, func(s grid.Square) (float64, bool) { return s.Tau, s.Selected })
	require.Len(t, hm.MultiSeries, 1)
	assert.Empty(t, hm.MultiSeries[0].Data)
}
