package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/spt.report/internal/engine"
	"github.com/banshee-data/spt.report/internal/fit"
	"github.com/banshee-data/spt.report/internal/httputil"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/report"
	"github.com/banshee-data/spt.report/internal/squares"
	"github.com/banshee-data/spt.report/internal/sweep"
	"github.com/banshee-data/spt.report/internal/tabular"
	"github.com/banshee-data/spt.report/internal/task"
	"github.com/banshee-data/spt.report/internal/timeutil"
)

func runProcess(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("process", stderr)
	var pf projectFlags
	var ef engineFlags
	pf.register(fs)
	ef.register(fs, "exec")
	debugAddr := fs.String("debug-listen", "", "Serve /debug/ and /metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pf.setup(stderr); err != nil {
		return err
	}

	cfg, err := pf.loadConfig()
	if err != nil {
		return err
	}
	exps, err := pf.experimentList()
	if err != nil {
		return err
	}
	eng, closeEngine, err := ef.open()
	if err != nil {
		return err
	}
	defer closeEngine()

	stopDebug, err := startDebugServer(ctx, *debugAddr, nil)
	if err != nil {
		return err
	}
	defer stopDebug()

	inv := &pipeline.Invoker{
		Engine: eng,
		Runner: task.NewRunner(stderr),
		FS:     fsys,
		Clock:  timeutil.RealClock{},
		Config: cfg,
	}
	res, err := inv.ProcessProject(ctx, pf.project, exps, nil)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPERIMENT\tPROCESSED\tFAILED\tSKIPPED")
	for _, e := range res.Experiments {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", e.Experiment, e.Processed, e.Failed, e.Skipped)
	}
	tw.Flush()
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d experiment(s) failed: %s", len(res.Failed), strings.Join(res.Failed, ", "))
	}
	return nil
}

func runSquares(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("squares", stderr)
	var pf projectFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pf.setup(stderr); err != nil {
		return err
	}
	cfg, err := pf.loadConfig()
	if err != nil {
		return err
	}
	exps, err := pf.experimentList()
	if err != nil {
		return err
	}

	g := &squares.Generator{FS: fsys, Config: cfg}
	var errs []error
	for _, exp := range exps {
		stats, err := g.GenerateExperiment(filepath.Join(pf.project, exp))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", exp, err))
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", exp, stats)
	}
	if err := pipeline.CompileProject(fsys, pf.project, exps); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func runCompile(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("compile", stderr)
	var pf projectFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pf.setup(stderr); err != nil {
		return err
	}
	exps, err := pf.experimentList()
	if err != nil {
		return err
	}
	if err := pipeline.CompileProject(fsys, pf.project, exps); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "compiled %d experiment(s) into %s\n", len(exps), pf.project)
	return nil
}

func runSweep(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("sweep", stderr)
	var pf projectFlags
	var ef engineFlags
	pf.register(fs)
	ef.register(fs, "exec")
	specPath := fs.String("spec", "", "Sweep specification (default: <project>/Sweep.toml)")
	debugAddr := fs.String("debug-listen", "", "Serve /debug/ and /metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := pf.setup(stderr); err != nil {
		return err
	}
	if *specPath == "" {
		*specPath = filepath.Join(pf.project, "Sweep.toml")
	}
	spec, err := sweep.LoadSpecification(fsys, *specPath)
	if err != nil {
		return err
	}
	cfg, err := pf.loadConfig()
	if err != nil {
		return err
	}
	exps, err := pf.experimentList()
	if err != nil {
		return err
	}
	eng, closeEngine, err := ef.open()
	if err != nil {
		return err
	}
	defer closeEngine()

	o := &sweep.Orchestrator{
		Config: cfg,
		Runner: sweep.InvokerRunner{Base: pipeline.Invoker{
			Engine: eng,
			Runner: task.NewRunner(stderr),
			FS:     fsys,
			Clock:  timeutil.RealClock{},
		}},
		Analyzer: sweep.SquaresAnalyzer{FS: fsys},
		FS:       fsys,
	}
	stopDebug, err := startDebugServer(ctx, *debugAddr, o.GetState)
	if err != nil {
		return err
	}
	defer stopDebug()

	summary, err := o.Run(ctx, pf.project, spec, exps)
	if summary != nil {
		printSummary(stdout, summary)
	}
	return err
}

func printSummary(w io.Writer, s *sweep.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tSTATUS\tDURATION\tERROR")
	for _, r := range s.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Case, r.Status, r.Duration.Round(time.Millisecond), r.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "summary: %s (flattened: %t)\n", sweep.SummaryPath(s.Root), s.Flattened)
}

func runFit(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("fit", stderr)
	file := fs.String("file", "", "CSV table holding track durations (required)")
	column := fs.String("column", "Track Duration", "Column of durations; falls back to the first column")
	minTracks := fs.Int("min-tracks", 20, "Minimum number of tracks to attempt a fit")
	minR2 := fs.Float64("min-r2", 0.9, "Minimum R² for a successful fit")
	plotPath := fs.String("plot", "", "Write a PNG of the frequency fit to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	t, err := tabular.Read(fsys, *file, tabular.Schema{})
	if err != nil {
		return err
	}
	col := t.Column(*column)
	if col < 0 {
		col = 0
	}
	var durations []float64
	for i, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		v, err := tabular.ParseFloat(row[col])
		if err != nil {
			return fmt.Errorf("%s row %d: %w", *file, i+2, err)
		}
		if !math.IsNaN(v) {
			durations = append(durations, v)
		}
	}

	res := fit.FitTau(durations, *minTracks, *minR2)
	fmt.Fprintf(stdout, "tracks: %d\nstatus: %s\ntau: %.3f ms\nr_squared: %.4f\n",
		len(durations), res.Status, res.Tau, res.RSquared)

	if *plotPath != "" {
		x, y := fit.Frequency(durations)
		p, err := fit.FitExponential(x, y)
		if err != nil {
			return err
		}
		return report.PlotDurationFit(fsys, *plotPath, x, y, p, filepath.Base(*file))
	}
	return nil
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", stderr)
	addr := fs.String("addr", "localhost:6060", "Debug address of a running sweep")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := httputil.NewStateClient(http.DefaultClient, *addr)
	var st sweep.State
	if err := client.SweepState(ctx, &st); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "status: %s\n", st.Status)
	if st.SweepID != "" {
		fmt.Fprintf(stdout, "sweep: %s\n", st.SweepID)
	}
	fmt.Fprintf(stdout, "progress: %d/%d\n", st.Completed, st.TotalRuns)
	if st.CurrentCase != "" {
		fmt.Fprintf(stdout, "current: %s\n", st.CurrentCase)
	}
	if st.Error != "" {
		fmt.Fprintf(stdout, "error: %s\n", st.Error)
	}
	for _, r := range st.Results {
		fmt.Fprintf(stdout, "  %-40s %s\n", r.Case, r.Status)
	}
	return nil
}

func runServeEngine(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("serve-engine", stderr)
	var ef engineFlags
	ef.register(fs, "synthetic")
	listen := fs.String("listen", "127.0.0.1:50051", "gRPC listen address")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	monitoring.SetOutput(stderr, false)
	if err := monitoring.SetLevel(*logLevel); err != nil {
		return err
	}
	if ef.kind == "grpc" {
		return errors.New("serve-engine cannot proxy another gRPC engine")
	}
	eng, closeEngine, err := ef.open()
	if err != nil {
		return err
	}
	defer closeEngine()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	engine.RegisterDetectionService(s, eng)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	fmt.Fprintf(stdout, "serving %s engine on %s\n", ef.kind, ln.Addr())
	if err := s.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
