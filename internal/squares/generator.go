// Package squares partitions each recording's tracks into a grid of squares,
// derives per-square statistics and selects the squares that stand out from
// the background.
package squares

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/fit"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/grid"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/report"
)

// OutputDir holds per-recording plots inside an experiment directory.
const OutputDir = "Output"

// Generator derives the square table of an experiment from its recording
// and track tables.
type Generator struct {
	FS     fsutil.FileSystem
	Config *config.Handle
}

// Stats summarises one GenerateExperiment call.
type Stats struct {
	Recordings int
	Skipped    int
	Squares    int
	Selected   int
}

// GenerateExperiment reads All Recordings and All Tracks of experimentDir,
// writes All Squares, and rewrites the track table with square assignments
// and the recording table with Background, Tau, R² and Density.
func (g *Generator) GenerateExperiment(experimentDir string) (Stats, error) {
	log := monitoring.Component("squares").With().Str("experiment", filepath.Base(experimentDir)).Logger()
	var stats Stats

	recPath := filepath.Join(experimentDir, model.RecordingsFile)
	trackPath := filepath.Join(experimentDir, model.TracksFile)
	squarePath := filepath.Join(experimentDir, model.SquaresFile)

	recs, err := model.ReadRecordings(g.FS, recPath)
	if err != nil {
		return stats, err
	}
	tracks, err := model.ReadTracks(g.FS, trackPath)
	if err != nil {
		return stats, err
	}
	previous := g.previousFlags(squarePath)

	params := g.Config.Squares()
	if err := g.Config.SaveIfDirty(); err != nil {
		log.Warn().Err(err).Msg("could not persist configuration defaults")
	}
	desc, err := grid.NewDescriptor(params.NrSquaresInRow*params.NrSquaresInRow, params.ImageSize)
	if err != nil {
		return stats, err
	}
	mode, err := grid.ParseNeighbourMode(params.NeighbourMode)
	if err != nil {
		return stats, err
	}
	vis := grid.VisibilityParams{
		MinDensityRatio: params.MinDensityRatio,
		MaxVariability:  params.MaxVariability,
		MinRSquared:     params.MinRSquared,
		NeighbourMode:   mode,
	}

	byRecording := make(map[string][]*model.Track)
	for i := range tracks {
		t := &tracks[i]
		t.SquareNr = model.Unassigned
		byRecording[t.RecordingName] = append(byRecording[t.RecordingName], t)
	}

	var out []model.Square
	for i := range recs {
		rec := &recs[i]
		rlog := log.With().Str("recording", rec.RecordingName).Logger()
		recTracks := byRecording[rec.RecordingName]
		if rec.Exclude || len(recTracks) == 0 || rec.NrFrames == nil || *rec.NrFrames <= 0 {
			stats.Skipped++
			rlog.Debug().Int("tracks", len(recTracks)).Bool("exclude", rec.Exclude).Msg("recording skipped")
			continue
		}

		squares, err := g.analyse(rec, recTracks, desc, params, vis, previous, rlog)
		if err != nil {
			stats.Skipped++
			rlog.Warn().Err(err).Msg("recording skipped")
			continue
		}
		stats.Recordings++
		stats.Squares += len(squares)
		for _, s := range squares {
			if s.Selected {
				stats.Selected++
			}
		}
		out = append(out, squares...)

		if params.Plot {
			g.plot(experimentDir, rec, recTracks, desc, squares, rlog)
		}
	}

	if err := model.WriteSquares(g.FS, squarePath, out); err != nil {
		return stats, err
	}
	if err := model.WriteTracks(g.FS, trackPath, tracks); err != nil {
		return stats, err
	}
	if err := model.WriteRecordings(g.FS, recPath, recs); err != nil {
		return stats, err
	}
	log.Info().
		Int("recordings", stats.Recordings).
		Int("skipped", stats.Skipped).
		Int("selected", stats.Selected).
		Msg("squares generated")
	return stats, nil
}

type flags struct{ manual, image bool }

// previousFlags keeps manual review decisions across regenerations.
func (g *Generator) previousFlags(path string) map[string]flags {
	out := map[string]flags{}
	if !g.FS.Exists(path) {
		return out
	}
	prev, err := model.ReadSquares(g.FS, path)
	if err != nil {
		monitoring.Component("squares").Warn().Err(err).Str("path", path).Msg("ignoring unreadable square table")
		return out
	}
	for _, s := range prev {
		if s.ManuallyExcluded || s.ImageExcluded {
			out[s.UniqueKey] = flags{manual: s.ManuallyExcluded, image: s.ImageExcluded}
		}
	}
	return out
}

func (g *Generator) analyse(rec *model.Recording, tracks []*model.Track, desc grid.Descriptor,
	params config.SquaresParams, vis grid.VisibilityParams, previous map[string]flags, log zerolog.Logger,
) ([]model.Square, error) {
	duration := float64(*rec.NrFrames) * params.FrameInterval
	area := desc.SquareArea()
	if _, err := grid.Density(1, area, duration, rec.Concentration); err != nil {
		return nil, err
	}

	squares := desc.NewSquares()
	members := make([][]*model.Track, len(squares))
	for _, t := range tracks {
		idx, ok := desc.Locate(t.X, t.Y)
		if !ok {
			continue
		}
		t.SquareNr = idx
		members[idx] = append(members[idx], t)
	}

	for i, sq := range squares {
		m := members[i]
		sq.NrTracks = len(m)
		xs, ys, durations := make([]float64, len(m)), make([]float64, len(m)), make([]float64, len(m))
		for j, t := range m {
			xs[j], ys[j], durations[j] = t.X, t.Y, t.Duration
		}
		sq.Variability = grid.Variability(xs, ys, sq.Cell, params.Granularity)
		sq.Density, _ = grid.Density(sq.NrTracks, area, duration, rec.Concentration)
		sq.Tau, sq.RSquared = tauValues(fit.FitTau(durations, params.MinTracksForTau, params.MinRSquared))

		if f, ok := previous[model.SquareKey(rec.RecordingName, i)]; ok {
			sq.ManuallyExcluded, sq.ImageExcluded = f.manual, f.image
		}
	}

	bg := grid.EstimateBackground(squares)
	for _, sq := range squares {
		if bg.Mean > 0 {
			sq.DensityRatio = float64(sq.NrTracks) / bg.Mean
		}
	}
	grid.ApplyVisibility(squares, vis)

	var selectedDurations []float64
	selectedTracks, selectedSquares := 0, 0
	for i, sq := range squares {
		if !sq.Selected || sq.ManuallyExcluded || sq.ImageExcluded {
			continue
		}
		selectedSquares++
		selectedTracks += sq.NrTracks
		for _, t := range members[i] {
			selectedDurations = append(selectedDurations, t.Duration)
		}
	}

	rec.Background = model.Float(bg.Mean)
	rec.Tau, rec.RSquared, rec.Density = nil, nil, nil
	if selectedSquares > 0 {
		tau, r2 := tauValues(fit.FitTau(selectedDurations, params.MinTracksForTau, params.MinRSquared))
		rec.Tau, rec.RSquared = model.Float(tau), model.Float(r2)
		if d, err := grid.Density(selectedTracks, area*float64(selectedSquares), duration, rec.Concentration); err == nil {
			rec.Density = model.Float(d)
		}
	}
	log.Debug().
		Float64("background", bg.Mean).
		Int("background_squares", len(bg.Members)).
		Int("selected", selectedSquares).
		Msg("recording analysed")

	out := make([]model.Square, len(squares))
	for i, sq := range squares {
		out[i] = model.Square{
			Square:        *sq,
			SquareMetrics: squareMetrics(members[i]),
			UniqueKey:     model.SquareKey(rec.RecordingName, i),
			RecordingName: rec.RecordingName,
		}
	}
	return out, nil
}

// tauValues keeps the fitted values of a fit that produced numbers and
// reports NaN otherwise.
func tauValues(r fit.TauResult) (float64, float64) {
	switch r.Status {
	case fit.StatusSuccess, fit.StatusRSquaredTooLow:
		return r.Tau, r.RSquared
	default:
		return math.NaN(), math.NaN()
	}
}

func (g *Generator) plot(experimentDir string, rec *model.Recording, tracks []*model.Track,
	desc grid.Descriptor, squares []model.Square, log zerolog.Logger,
) {
	dir := filepath.Join(experimentDir, OutputDir)
	durations := make([]float64, len(tracks))
	for i, t := range tracks {
		durations[i] = t.Duration
	}
	var errs []error
	x, y := fit.Frequency(durations)
	if p, err := fit.FitExponential(x, y); err == nil {
		path := filepath.Join(dir, rec.RecordingName+"-duration.png")
		errs = append(errs, report.PlotDurationFit(g.FS, path, x, y, p, rec.RecordingName))
	}

	cells := make([]grid.Square, len(squares))
	for i, s := range squares {
		cells[i] = s.Square
	}
	path := filepath.Join(dir, rec.RecordingName+"-squares.html")
	errs = append(errs, report.WriteSquareHeatmap(g.FS, path, rec.RecordingName, desc, cells))

	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("could not write plots")
	}
}

// String implements fmt.Stringer for log lines and CLI output.
func (s Stats) String() string {
	return fmt.Sprintf("%d recordings, %d skipped, %d squares, %d selected",
		s.Recordings, s.Skipped, s.Squares, s.Selected)
}
