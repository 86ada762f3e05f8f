// Package pipeline drives the detection engine over the recordings of an
// experiment and assembles the per-experiment and per-project tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/engine"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/tabular"
	"github.com/banshee-data/spt.report/internal/task"
	"github.com/banshee-data/spt.report/internal/timeutil"
)

// ErrCancelled is returned when the operator stopped processing.
var ErrCancelled = errors.New("processing cancelled")

// Invoker runs the detection engine for every recording flagged for
// processing and writes the experiment's recording and track tables.
type Invoker struct {
	Engine engine.Engine
	Runner *task.Runner
	FS     fsutil.FileSystem
	Clock  timeutil.Clock
	Config *config.Handle
}

// ExperimentResult summarises one ProcessExperiment call.
type ExperimentResult struct {
	Experiment string
	Processed  int
	Failed     int
	Skipped    int
	Cancelled  bool
	Recordings []model.Recording
}

func (inv *Invoker) clock() timeutil.Clock {
	if inv.Clock == nil {
		return timeutil.RealClock{}
	}
	return inv.Clock
}

func (inv *Invoker) runner() *task.Runner {
	if inv.Runner == nil {
		return &task.Runner{Clock: inv.clock()}
	}
	return inv.Runner
}

// imagePath resolves <images root>/<experiment>/<recording><ext>. An empty
// images root means the images live beside the experiment directories.
func imagePath(p config.ProcessingParams, experimentDir, recording string) string {
	root := p.ImagesRoot
	if root == "" {
		root = filepath.Dir(experimentDir)
	}
	return filepath.Join(root, filepath.Base(experimentDir), recording+p.ImageExtension)
}

// ProcessExperiment processes every recording of the experiment in
// experimentDir. A failing or timed-out recording gets a row with zeroed
// derived columns and processing continues; cancellation stops at once and
// writes no experiment tables.
func (inv *Invoker) ProcessExperiment(ctx context.Context, experimentDir string, probe task.CancelProbe) (ExperimentResult, error) {
	experiment := filepath.Base(experimentDir)
	log := monitoring.Component("pipeline").With().Str("experiment", experiment).Logger()
	result := ExperimentResult{Experiment: experiment}

	info, err := model.ReadExperimentInfo(inv.FS, filepath.Join(experimentDir, model.ExperimentInfoFile))
	if err != nil {
		return result, fmt.Errorf("experiment %s: %w", experiment, err)
	}

	proc := inv.Config.Processing()
	baseParams := inv.Config.Detection()
	if err := inv.Config.SaveIfDirty(); err != nil {
		log.Warn().Err(err).Msg("could not persist configuration defaults")
	}

	clock := inv.clock()
	var trackFiles []string

	for _, rec := range info {
		if !rec.Process {
			result.Skipped++
			monitoring.RecordingsTotal.WithLabelValues("skipped").Inc()
			result.Recordings = append(result.Recordings, rec.Metadata())
			continue
		}
		if probe != nil && probe() {
			result.Cancelled = true
			break
		}

		params := baseParams
		if rec.Threshold > 0 {
			params.Threshold = rec.Threshold
		}
		req := engine.Request{
			ImagePath: imagePath(proc, experimentDir, rec.RecordingName),
			Recording: rec.RecordingName,
			Params:    params,
		}

		var res *engine.Result
		start := clock.Now()
		out := inv.runner().Execute(ctx, func(ctx context.Context) error {
			r, err := inv.Engine.Detect(ctx, req)
			res = r
			return err
		}, proc.TimeLimit, probe)
		elapsed := clock.Since(start)

		rlog := log.With().Str("recording", rec.RecordingName).Logger()
		switch {
		case out.Outcome == task.Cancelled:
			rlog.Warn().Msg("processing cancelled; no row written for in-flight recording")
			monitoring.RecordingsTotal.WithLabelValues("cancelled").Inc()
			result.Cancelled = true
		case out.Outcome == task.TimedOut:
			rlog.Error().Dur("time_limit", proc.TimeLimit).Msg("recording timed out")
			monitoring.RecordingsTotal.WithLabelValues("timeout").Inc()
			result.Failed++
			result.Recordings = append(result.Recordings, rec.Failed())
		case out.Err != nil || res == nil:
			rlog.Error().Err(out.Err).Str("image", req.ImagePath).Msg("recording failed")
			monitoring.RecordingsTotal.WithLabelValues("failed").Inc()
			result.Failed++
			result.Recordings = append(result.Recordings, rec.Failed())
		default:
			path := filepath.Join(experimentDir, model.TracksFileFor(rec.RecordingName))
			if err := model.WriteTracks(inv.FS, path, res.ModelTracks(rec.RecordingName)); err != nil {
				rlog.Error().Err(err).Msg("could not write track table")
				monitoring.RecordingsTotal.WithLabelValues("failed").Inc()
				result.Failed++
				result.Recordings = append(result.Recordings, rec.Failed())
				continue
			}
			trackFiles = append(trackFiles, path)

			row := rec.Metadata()
			row.NrSpots = model.Int(res.NrSpots)
			row.NrTracks = model.Int(res.NrTracksFiltered)
			row.NrFrames = model.Int(res.NrFrames)
			row.RunTime = model.Float(elapsed.Seconds())
			row.TimeStamp = timeutil.ISO(clock.Now())
			result.Recordings = append(result.Recordings, row)
			result.Processed++
			monitoring.RecordingsTotal.WithLabelValues("ok").Inc()
			rlog.Info().
				Int("spots", res.NrSpots).
				Int("tracks", res.NrTracksFiltered).
				Dur("elapsed", elapsed).
				Msg("recording processed")
		}
		if result.Cancelled {
			break
		}
	}

	if result.Cancelled {
		return result, fmt.Errorf("experiment %s: %w", experiment, ErrCancelled)
	}

	if err := model.WriteRecordings(inv.FS, filepath.Join(experimentDir, model.RecordingsFile), result.Recordings); err != nil {
		return result, fmt.Errorf("experiment %s: %w", experiment, err)
	}
	tracksOut := filepath.Join(experimentDir, model.TracksFile)
	if len(trackFiles) == 0 {
		err = tabular.Write(inv.FS, tracksOut, tabular.NewTable(model.TrackSchema))
	} else {
		err = tabular.Concatenate(inv.FS, trackFiles, tracksOut, true)
	}
	if err != nil {
		return result, fmt.Errorf("experiment %s: %w", experiment, err)
	}

	log.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("experiment processed")
	return result, nil
}
