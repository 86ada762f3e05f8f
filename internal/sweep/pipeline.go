package sweep

import (
	"context"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/squares"
)

// PipelineRunner processes the experiments of a project root with the
// given configuration.
type PipelineRunner interface {
	RunProject(ctx context.Context, root string, cfg *config.Handle, experiments []string) error
}

// Analyzer runs the downstream spatial analysis of one experiment directory.
type Analyzer interface {
	AnalyzeExperiment(dir string, cfg *config.Handle) error
}

// InvokerRunner runs the recording pipeline with a copy of Base bound to
// each sandbox configuration.
type InvokerRunner struct {
	Base pipeline.Invoker
}

// RunProject implements PipelineRunner.
func (r InvokerRunner) RunProject(ctx context.Context, root string, cfg *config.Handle, experiments []string) error {
	inv := r.Base
	inv.Config = cfg
	_, err := inv.ProcessProject(ctx, root, experiments, nil)
	return err
}

// SquaresAnalyzer generates squares with the sandbox configuration.
type SquaresAnalyzer struct {
	FS fsutil.FileSystem
}

// AnalyzeExperiment implements Analyzer.
func (a SquaresAnalyzer) AnalyzeExperiment(dir string, cfg *config.Handle) error {
	g := &squares.Generator{FS: a.FS, Config: cfg}
	_, err := g.GenerateExperiment(dir)
	return err
}
