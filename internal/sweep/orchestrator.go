// Package sweep runs one-factor-at-a-time parameter sweeps: every candidate
// value of every enabled parameter is processed in its own sandbox against
// the same baseline configuration.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/security"
	"github.com/banshee-data/spt.report/internal/tabular"
	"github.com/banshee-data/spt.report/internal/timeutil"
)

// Dir is the sweep directory under the project root and under each
// experiment after flattening.
const Dir = "Sweep"

// Status is the lifecycle state of the orchestrator.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Run outcomes recorded in the summary.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// RunResult is one row of the sweep summary.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Parameter string        `json:"parameter"`
	Value     float64       `json:"value"`
	Case      string        `json:"case"`
	Sandbox   string        `json:"sandbox"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// OK reports a successful run.
func (r RunResult) OK() bool { return r.Status == OutcomeOK }

// Summary is the outcome of one sweep.
type Summary struct {
	SweepID   string      `json:"sweep_id"`
	Root      string      `json:"root"`
	Runs      []RunResult `json:"runs"`
	Flattened bool        `json:"flattened"`
}

// AllOK reports whether every run succeeded.
func (s *Summary) AllOK() bool {
	for _, r := range s.Runs {
		if !r.OK() {
			return false
		}
	}
	return len(s.Runs) > 0
}

// State is the live progress of the orchestrator, served on the debug
// endpoint.
type State struct {
	Status      Status      `json:"status"`
	SweepID     string      `json:"sweep_id,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	TotalRuns   int         `json:"total_runs"`
	Completed   int         `json:"completed_runs"`
	CurrentCase string      `json:"current_case,omitempty"`
	Results     []RunResult `json:"results"`
	Error       string      `json:"error,omitempty"`
}

// Orchestrator runs sweeps against the project configuration held by
// Config. It owns Config for the duration of Run and restores it on every
// exit path.
type Orchestrator struct {
	Config   *config.Handle
	Runner   PipelineRunner
	Analyzer Analyzer
	FS       fsutil.FileSystem
	Clock    timeutil.Clock

	mu    sync.RWMutex
	state State
}

func (o *Orchestrator) clock() timeutil.Clock {
	if o.Clock == nil {
		return timeutil.RealClock{}
	}
	return o.Clock
}

// GetSweepState returns a copy of the current state.
func (o *Orchestrator) GetSweepState() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state := o.state
	state.Results = append([]RunResult(nil), o.state.Results...)
	if state.Status == "" {
		state.Status = StatusIdle
	}
	return state
}

// GetState returns the state for the debug server.
func (o *Orchestrator) GetState() any {
	return o.GetSweepState()
}

func (o *Orchestrator) update(fn func(*State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.state)
}

// CaseLabel names the sandbox and case directory of one run.
func CaseLabel(parameter string, value float64) string {
	return fmt.Sprintf("%s-%s", parameter, FormatValue(value))
}

// SummaryPath is where Run writes the summary table.
func SummaryPath(root string) string {
	return filepath.Join(root, Dir, "Sweep Summary.csv")
}

// Run sweeps every enabled parameter of spec over the named experiments of
// the project at root. The summary is written even when runs fail; the
// flatten step only happens when all of them succeeded. A cancelled ctx
// stops the sweep after the in-flight run and returns pipeline.ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, root string, spec Specification, experiments []string) (*Summary, error) {
	params := spec.Enabled()
	if len(params) == 0 {
		return nil, ErrNoEnabledParameters
	}
	baselines := make(map[string]string, len(params))
	for _, p := range params {
		raw, ok := o.Config.Raw(p.Name)
		if !ok {
			return nil, fmt.Errorf("sweep %q: %w", p.Name, config.ErrUnknownParameter)
		}
		baselines[p.Name] = raw
		for _, v := range p.Values {
			if err := o.Config.Check(p.Name, FormatValue(v)); err != nil {
				return nil, fmt.Errorf("sweep %q: %w", p.Name, err)
			}
		}
	}
	for _, exp := range experiments {
		if err := security.ValidateName(exp); err != nil {
			return nil, fmt.Errorf("experiment: %w", err)
		}
	}

	o.mu.Lock()
	if o.state.Status == StatusRunning {
		o.mu.Unlock()
		return nil, errors.New("sweep already in progress")
	}
	summary := &Summary{SweepID: uuid.NewString(), Root: root}
	now := o.clock().Now()
	o.state = State{
		Status:    StatusRunning,
		SweepID:   summary.SweepID,
		StartedAt: &now,
		TotalRuns: spec.Runs(),
		Results:   make([]RunResult, 0, spec.Runs()),
	}
	o.mu.Unlock()

	log := monitoring.Component("sweep").With().Str("sweep_id", summary.SweepID).Str("root", root).Logger()
	log.Info().Int("parameters", len(params)).Int("runs", spec.Runs()).Strs("experiments", experiments).Msg("sweep started")

	checkpoint := o.Config.Checkpoint()
	defer func() {
		o.Config.Restore(checkpoint)
		if err := o.Config.Save(); err != nil {
			log.Error().Err(err).Msg("could not save restored configuration")
		}
	}()

	err := o.sweep(ctx, root, params, baselines, experiments, summary)

	if werr := o.writeSummary(root, summary); werr != nil {
		err = errors.Join(err, werr)
	}
	if err == nil && summary.AllOK() {
		if ferr := o.Flatten(root, summary, experiments); ferr != nil {
			err = ferr
		} else {
			summary.Flattened = true
		}
	} else if err == nil {
		log.Warn().Msg("not flattening: some runs failed")
	}

	done := o.clock().Now()
	o.update(func(s *State) {
		s.CompletedAt = &done
		s.CurrentCase = ""
		if err != nil {
			s.Status = StatusError
			s.Error = err.Error()
		} else {
			s.Status = StatusComplete
		}
	})
	log.Info().Bool("flattened", summary.Flattened).Err(err).Msg("sweep finished")
	return summary, err
}

func (o *Orchestrator) sweep(ctx context.Context, root string, params []Parameter, baselines map[string]string, experiments []string, summary *Summary) error {
	log := monitoring.Component("sweep")
	for _, p := range params {
		for _, v := range p.Values {
			if ctx.Err() != nil {
				return pipeline.ErrCancelled
			}
			res := o.runOne(ctx, root, p.Name, v, experiments)
			summary.Runs = append(summary.Runs, res)
			monitoring.SweepRunsTotal.WithLabelValues(res.Status).Inc()
			o.update(func(s *State) {
				s.Completed++
				s.Results = append(s.Results, res)
			})
			if res.Status == OutcomeCancelled {
				o.restoreBaseline(p.Name, baselines[p.Name])
				return pipeline.ErrCancelled
			}
		}
		o.restoreBaseline(p.Name, baselines[p.Name])
		log.Debug().Str("parameter", p.Name).Str("baseline", baselines[p.Name]).Msg("parameter restored")
	}
	return nil
}

func (o *Orchestrator) restoreBaseline(name, raw string) {
	if err := o.Config.SetTyped(name, raw); err != nil {
		monitoring.Component("sweep").Error().Err(err).Str("parameter", name).Msg("could not restore baseline")
	}
}

// runOne prepares the sandbox of (parameter, value) and runs the pipeline in
// it.
func (o *Orchestrator) runOne(ctx context.Context, root, parameter string, value float64, experiments []string) RunResult {
	label := CaseLabel(parameter, value)
	res := RunResult{
		RunID:     uuid.NewString(),
		Parameter: parameter,
		Value:     value,
		Case:      label,
		Sandbox:   filepath.Join(root, Dir, label),
	}
	log := monitoring.Component("sweep").With().Str("case", label).Str("run_id", res.RunID).Logger()
	o.update(func(s *State) { s.CurrentCase = label })

	start := o.clock().Now()
	err := o.prepareSandbox(root, res.Sandbox, parameter, value, experiments)
	if err == nil {
		var cfg *config.Handle
		cfg, err = config.Load(o.FS, filepath.Join(res.Sandbox, config.FileName))
		if err == nil {
			err = o.Runner.RunProject(ctx, res.Sandbox, cfg, experiments)
		}
	}
	res.Duration = o.clock().Since(start)

	switch {
	case err == nil:
		res.Status = OutcomeOK
		log.Info().Dur("duration", res.Duration).Msg("sweep run completed")
	case errors.Is(err, pipeline.ErrCancelled) || ctx.Err() != nil:
		res.Status = OutcomeCancelled
		res.Error = err.Error()
		log.Warn().Msg("sweep run cancelled")
	default:
		res.Status = OutcomeFailed
		res.Error = err.Error()
		log.Error().Err(err).Msg("sweep run failed")
	}
	return res
}

// prepareSandbox writes the configuration copy with parameter=value and the
// metadata copies of every experiment.
func (o *Orchestrator) prepareSandbox(root, sandbox, parameter string, value float64, experiments []string) error {
	if err := security.ValidatePathWithinDirectory(sandbox, filepath.Join(root, Dir)); err != nil {
		return err
	}
	if err := o.FS.RemoveAll(sandbox); err != nil {
		return fmt.Errorf("clear sandbox: %w", err)
	}
	if err := o.FS.MkdirAll(sandbox, 0o755); err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}

	// Images stay in the project; sandboxes only hold tables.
	imagesRoot := o.Config.String(config.ImagesRoot)
	if imagesRoot == "" {
		if err := o.Config.Set(config.ImagesRoot, root); err != nil {
			return err
		}
		defer o.Config.Set(config.ImagesRoot, imagesRoot) //nolint:errcheck
	}
	if err := o.Config.SetTyped(parameter, FormatValue(value)); err != nil {
		return err
	}
	if err := o.Config.SaveAs(filepath.Join(sandbox, config.FileName)); err != nil {
		return err
	}

	for _, exp := range experiments {
		src := filepath.Join(root, exp, model.ExperimentInfoFile)
		dst := filepath.Join(sandbox, exp, model.ExperimentInfoFile)
		if parameter != config.Threshold {
			if err := fsutil.CopyFile(o.FS, src, dst); err != nil {
				return fmt.Errorf("copy metadata of %s: %w", exp, err)
			}
			continue
		}
		// A per-recording threshold would override the swept value.
		t, err := tabular.Read(o.FS, src, model.ExperimentInfoSchema)
		if err != nil {
			return fmt.Errorf("copy metadata of %s: %w", exp, err)
		}
		t.SetColumn("Threshold", "")
		if err := tabular.Write(o.FS, dst, t); err != nil {
			return fmt.Errorf("copy metadata of %s: %w", exp, err)
		}
	}
	return nil
}

var summarySchema = tabular.Schema{
	Name:    "sweep summary",
	Columns: []string{"Run ID", "Parameter", "Value", "Case", "Sandbox", "Status", "Error", "Duration"},
}

func (o *Orchestrator) writeSummary(root string, summary *Summary) error {
	t := tabular.NewTable(summarySchema)
	for _, r := range summary.Runs {
		t.Rows = append(t.Rows, []string{
			r.RunID,
			r.Parameter,
			FormatValue(r.Value),
			r.Case,
			r.Sandbox,
			r.Status,
			r.Error,
			tabular.FormatFloat(r.Duration.Seconds()),
		})
	}
	if err := tabular.Write(o.FS, SummaryPath(root), t); err != nil {
		return fmt.Errorf("write sweep summary: %w", err)
	}
	writeSummaryChart(o.FS, root, summary)
	return nil
}
