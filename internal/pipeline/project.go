package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/tabular"
	"github.com/banshee-data/spt.report/internal/task"
)

// ProjectFiles are the tables compiled from experiment directories into the
// project root.
var ProjectFiles = []string{model.RecordingsFile, model.TracksFile, model.SquaresFile}

// ProjectResult summarises one ProcessProject call.
type ProjectResult struct {
	Experiments []ExperimentResult
	Failed      []string
}

// ListExperiments returns the sorted names of the directories under root
// that contain an experiment info table.
func ListExperiments(fsys fsutil.FileSystem, root string) ([]string, error) {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list experiments in %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && fsys.Exists(filepath.Join(root, e.Name(), model.ExperimentInfoFile)) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ProcessProject processes the named experiments under root one after the
// other, then compiles the project tables. A failed experiment is logged
// and reported but does not stop its siblings; cancellation does.
func (inv *Invoker) ProcessProject(ctx context.Context, root string, experiments []string, probe task.CancelProbe) (ProjectResult, error) {
	log := monitoring.Component("pipeline")
	var result ProjectResult
	var errs []error

	for _, exp := range experiments {
		if ctx.Err() != nil || (probe != nil && probe()) {
			return result, ErrCancelled
		}
		res, err := inv.ProcessExperiment(ctx, filepath.Join(root, exp), probe)
		result.Experiments = append(result.Experiments, res)
		if errors.Is(err, ErrCancelled) {
			return result, err
		}
		if err != nil {
			log.Error().Err(err).Str("experiment", exp).Str("root", root).Msg("experiment failed")
			result.Failed = append(result.Failed, exp)
			errs = append(errs, err)
		}
	}

	if err := CompileProject(inv.FS, root, experiments); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return result, fmt.Errorf("project %s: %w", root, errors.Join(errs...))
	}
	return result, nil
}

// CompileProject concatenates each project table across the experiment
// directories into root, keeping the inputs. Tables no experiment has
// produced yet are skipped; a table missing from only some experiments
// aborts that output alone.
func CompileProject(fsys fsutil.FileSystem, root string, experiments []string) error {
	log := monitoring.Component("aggregate")
	var errs []error
	for _, name := range ProjectFiles {
		inputs := make([]string, 0, len(experiments))
		present := 0
		for _, exp := range experiments {
			p := filepath.Join(root, exp, name)
			if fsys.Exists(p) {
				present++
			}
			inputs = append(inputs, p)
		}
		if present == 0 {
			log.Debug().Str("table", name).Msg("no experiment has this table yet")
			continue
		}
		if err := tabular.Concatenate(fsys, inputs, filepath.Join(root, name), false); err != nil {
			log.Error().Err(err).Str("table", name).Str("root", root).Msg("project table not compiled")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
