package squares

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/grid"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/testutil"
)

const hotspot = 5 // row 1, column 1 of a 4x4 grid

// hotspotTracks places an exponential duration distribution in the hotspot
// square and five short tracks in every other square.
func hotspotTracks(rec string, desc grid.Descriptor) []model.Track {
	var tracks []model.Track
	add := func(cell grid.Cell, k int, duration float64) {
		w := (cell.X1 - cell.X0) / 50
		h := (cell.Y1 - cell.Y0) / 50
		id := len(tracks)
		tracks = append(tracks, model.Track{
			UniqueKey:     model.TrackKey(rec, id),
			RecordingName: rec,
			TrackID:       id,
			NrSpots:       4,
			Duration:      duration,
			X:             cell.X0 + (float64(k%50)+0.5)*w,
			Y:             cell.Y0 + (float64((k/50)%50)+0.5)*h,
			SquareNr:      model.Unassigned,
		})
	}
	for _, cell := range desc.Cells() {
		if cell.Index == hotspot {
			k := 0
			for x := 0.0; x < 300; x += 2 {
				n := int(math.Round(10 * (5*math.Exp(-0.02*x) + 1)))
				for range n {
					add(cell, k, x)
					k++
				}
			}
			continue
		}
		for k := range 5 {
			add(cell, k*11, 4)
		}
	}
	return tracks
}

type fixture struct {
	p    *testutil.Project
	dir  string
	desc grid.Descriptor
}

func newFixture(t *testing.T, settings map[string]any) fixture {
	t.Helper()
	p := testutil.NewProject(t, "/proj")
	cfg := p.Config(t)
	require.NoError(t, cfg.Set(config.NrSquaresInRow, 4))
	for k, v := range settings {
		require.NoError(t, cfg.Set(k, v))
	}
	require.NoError(t, cfg.Save())

	desc, err := grid.NewDescriptor(16, grid.DefaultImageSize)
	require.NoError(t, err)

	recs := testutil.Recordings("E1", 3)
	frames := 2000
	for i := range recs {
		recs[i].NrFrames = &frames
		recs[i].NrTracks = model.Int(0)
	}
	recs[1].Exclude = true
	tracks := append(hotspotTracks("E1-R1", desc), hotspotTracks("E1-R2", desc)...)

	dir := filepath.Join(p.Root, "E1")
	require.NoError(t, model.WriteRecordings(p.FS, filepath.Join(dir, model.RecordingsFile), recs))
	require.NoError(t, model.WriteTracks(p.FS, filepath.Join(dir, model.TracksFile), tracks))
	return fixture{p: p, dir: dir, desc: desc}
}

func (f fixture) generate(t *testing.T) Stats {
	t.Helper()
	g := &Generator{FS: f.p.FS, Config: f.p.Config(t)}
	stats, err := g.GenerateExperiment(f.dir)
	require.NoError(t, err)
	return stats
}

func (f fixture) squares(t *testing.T) []model.Square {
	t.Helper()
	sq, err := model.ReadSquares(f.p.FS, filepath.Join(f.dir, model.SquaresFile))
	require.NoError(t, err)
	return sq
}

func (f fixture) recordings(t *testing.T) []model.Recording {
	t.Helper()
	recs, err := model.ReadRecordings(f.p.FS, filepath.Join(f.dir, model.RecordingsFile))
	require.NoError(t, err)
	return recs
}

func TestGenerateExperimentSelectsHotspot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	stats := f.generate(t)
	assert.Equal(t, Stats{Recordings: 1, Skipped: 2, Squares: 16, Selected: 1}, stats)

	squares := f.squares(t)
	require.Len(t, squares, 16)
	hot := squares[hotspot]
	assert.Equal(t, "E1-R1-5", hot.UniqueKey)
	assert.Equal(t, "E1-R1", hot.RecordingName)
	assert.True(t, hot.Selected)
	assert.Greater(t, hot.DensityRatio, 100.0)
	assert.Less(t, hot.Variability, 1.0)
	assert.GreaterOrEqual(t, hot.RSquared, 0.9)
	assert.InEpsilon(t, 50000, hot.Tau, 0.1)

	bg := squares[0]
	assert.False(t, bg.Selected)
	assert.Equal(t, 5, bg.NrTracks)
	assert.True(t, math.IsNaN(bg.Tau), "too few tracks to fit")
	assert.InDelta(t, 1.0, bg.DensityRatio, 1e-9)
	assert.Equal(t, 4.0, bg.MedianTrackDuration)

	recs := f.recordings(t)
	require.Len(t, recs, 3)
	r1 := recs[0]
	require.NotNil(t, r1.Background)
	assert.InDelta(t, 5, *r1.Background, 1e-9)
	require.NotNil(t, r1.Tau)
	assert.InEpsilon(t, hot.Tau, *r1.Tau, 1e-3)
	require.NotNil(t, r1.Density)
	want, err := grid.Density(hot.NrTracks, f.desc.SquareArea(), 100, 1)
	require.NoError(t, err)
	assert.InEpsilon(t, want, *r1.Density, 1e-2)

	assert.Nil(t, recs[1].Tau, "excluded recording untouched")
	assert.Nil(t, recs[2].Background, "recording without tracks untouched")

	tracks, err := model.ReadTracks(f.p.FS, filepath.Join(f.dir, model.TracksFile))
	require.NoError(t, err)
	for _, tr := range tracks {
		switch tr.RecordingName {
		case "E1-R1":
			idx, ok := f.desc.Locate(tr.X, tr.Y)
			require.True(t, ok)
			assert.Equal(t, idx, tr.SquareNr)
		default:
			assert.Equal(t, model.Unassigned, tr.SquareNr)
		}
	}
}

func TestGenerateExperimentNeighbourModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"Relaxed", "Strict"} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, map[string]any{config.NeighbourMode: mode})
			stats := f.generate(t)
			assert.Zero(t, stats.Selected, "an isolated hotspot has no selected neighbour")
			r1 := f.recordings(t)[0]
			assert.Nil(t, r1.Tau)
			assert.Nil(t, r1.Density)
			require.NotNil(t, r1.Background)
		})
	}
}

func TestGenerateExperimentKeepsManualExclusion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.generate(t)

	squares := f.squares(t)
	squares[hotspot].ManuallyExcluded = true
	require.NoError(t, model.WriteSquares(f.p.FS, filepath.Join(f.dir, model.SquaresFile), squares))

	stats := f.generate(t)
	assert.Equal(t, 1, stats.Selected)
	again := f.squares(t)
	assert.True(t, again[hotspot].ManuallyExcluded)
	assert.True(t, again[hotspot].Selected)
	assert.Nil(t, f.recordings(t)[0].Tau, "excluded squares do not feed the recording fit")
}

func TestGenerateExperimentPlots(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]any{config.Plot: true})
	f.generate(t)
	assert.True(t, f.p.FS.Exists(filepath.Join(f.dir, OutputDir, "E1-R1-squares.html")))
	assert.True(t, f.p.FS.Exists(filepath.Join(f.dir, OutputDir, "E1-R1-duration.png")))
	assert.False(t, f.p.FS.Exists(filepath.Join(f.dir, OutputDir, "E1-R2-squares.html")))
}

func TestGenerateExperimentMissingTables(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	g := &Generator{FS: p.FS, Config: p.Config(t)}
	_, err := g.GenerateExperiment("/proj/E1")
	require.Error(t, err)
}

func TestSquareMetrics(t *testing.T) {
	t.Parallel()

	var tracks []*model.Track
	for i := 1; i <= 20; i++ {
		tracks = append(tracks, &model.Track{
			Duration:     float64(i),
			Displacement: 1,
			MaxSpeed:     float64(i),
			MeanSpeed:    2,
		})
	}
	m := squareMetrics(tracks)
	assert.Equal(t, 10.5, m.MedianTrackDuration)
	assert.Equal(t, 20.0, m.MaxTrackDuration)
	assert.Equal(t, 210.0, m.TotalTrackDuration)
	assert.Equal(t, 19.5, m.MedianLongTrackDuration, "median of the two longest")
	assert.Equal(t, 1.5, m.MedianShortTrackDuration, "median of the two shortest")
	assert.Equal(t, 20.0, m.TotalDisplacement)
	assert.Equal(t, 20.0, m.MaxMaxSpeed)
	assert.Equal(t, 2.0, m.MedianMeanSpeed)

	empty := squareMetrics(nil)
	assert.True(t, math.IsNaN(empty.MedianTrackDuration))
	assert.True(t, math.IsNaN(empty.MedianLongTrackDuration))
	assert.Zero(t, empty.TotalTrackDuration)
}

func TestMedian(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3}, 3},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, median(tt.in))
	}
	assert.True(t, math.IsNaN(median(nil)))
}
