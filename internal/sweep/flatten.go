package sweep

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/report"
	"github.com/banshee-data/spt.report/internal/security"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// caseTables are tagged with the Case column after flattening.
var caseTables = []string{model.RecordingsFile, model.TracksFile, model.SquaresFile}

// compiledTables are concatenated across cases into root/Sweep.
var compiledTables = []string{model.SquaresFile, model.RecordingsFile}

// CaseDir is where Flatten moves the output of one experiment for one case.
func CaseDir(root, experiment, label string) string {
	return filepath.Join(root, experiment, Dir, label)
}

// Flatten moves each sandbox experiment to root/<experiment>/Sweep/<case>,
// generates squares there with the sandbox configuration, tags every row
// with its case and compiles the sweep-wide square and recording tables.
func (o *Orchestrator) Flatten(root string, summary *Summary, experiments []string) error {
	log := monitoring.Component("sweep")
	compiled := make(map[string][]string, len(compiledTables))

	for _, run := range summary.Runs {
		cfg, err := config.Load(o.FS, filepath.Join(run.Sandbox, config.FileName))
		if err != nil {
			return fmt.Errorf("flatten %s: %w", run.Case, err)
		}
		for _, exp := range experiments {
			dst := CaseDir(root, exp, run.Case)
			if err := security.ValidatePathWithinDirectory(dst, root); err != nil {
				return fmt.Errorf("flatten %s: %w", run.Case, err)
			}
			if err := o.FS.RemoveAll(dst); err != nil {
				return fmt.Errorf("flatten %s/%s: %w", exp, run.Case, err)
			}
			if err := o.FS.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("flatten %s/%s: %w", exp, run.Case, err)
			}
			if err := o.FS.Rename(filepath.Join(run.Sandbox, exp), dst); err != nil {
				return fmt.Errorf("flatten %s/%s: %w", exp, run.Case, err)
			}
			if o.Analyzer != nil {
				if err := o.Analyzer.AnalyzeExperiment(dst, cfg); err != nil {
					return fmt.Errorf("squares for %s/%s: %w", exp, run.Case, err)
				}
			}
			if err := tagCase(o.FS, dst, run.Case); err != nil {
				return err
			}
			for _, name := range compiledTables {
				compiled[name] = append(compiled[name], filepath.Join(dst, name))
			}
		}
		log.Debug().Str("case", run.Case).Msg("case flattened")
	}

	var errs []error
	for _, name := range compiledTables {
		inputs := existing(o.FS, compiled[name])
		if len(inputs) == 0 {
			continue
		}
		if err := tabular.Concatenate(o.FS, inputs, filepath.Join(root, Dir, name), false); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("compile sweep tables: %w", err)
	}
	log.Info().Int("cases", len(summary.Runs)).Int("experiments", len(experiments)).Msg("sweep flattened")
	return nil
}

// tagCase sets the Case column of every table in dir to label.
func tagCase(fsys fsutil.FileSystem, dir, label string) error {
	for _, name := range caseTables {
		path := filepath.Join(dir, name)
		if !fsys.Exists(path) {
			continue
		}
		t, err := tabular.Read(fsys, path, tabular.Schema{})
		if err != nil {
			return err
		}
		t.SetColumn(model.CaseColumn, label)
		if err := tabular.Write(fsys, path, t); err != nil {
			return err
		}
	}
	return nil
}

func existing(fsys fsutil.FileSystem, paths []string) []string {
	var out []string
	for _, p := range paths {
		if fsys.Exists(p) {
			out = append(out, p)
		}
	}
	return out
}

func writeSummaryChart(fsys fsutil.FileSystem, root string, summary *Summary) {
	if len(summary.Runs) == 0 {
		return
	}
	bars := make([]report.SweepBar, len(summary.Runs))
	for i, r := range summary.Runs {
		bars[i] = report.SweepBar{Case: r.Case, Seconds: r.Duration.Seconds(), OK: r.OK()}
	}
	path := filepath.Join(root, Dir, "Sweep Summary.html")
	if err := report.WriteSweepSummary(fsys, path, "Sweep "+summary.SweepID, bars); err != nil {
		monitoring.Component("sweep").Warn().Err(err).Str("path", path).Msg("could not write sweep chart")
	}
}
