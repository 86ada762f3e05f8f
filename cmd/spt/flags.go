package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/engine"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/httputil"
	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/security"
)

var fsys fsutil.FileSystem = fsutil.OSFileSystem{}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// projectFlags are shared by every subcommand working on a project.
type projectFlags struct {
	project     string
	experiments string
	configPath  string
	logLevel    string
	logJSON     bool
}

func (p *projectFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.project, "project", "", "Project directory (required)")
	fs.StringVar(&p.experiments, "experiments", "", "Comma-separated experiment names (default: all)")
	fs.StringVar(&p.configPath, "config", "", "Configuration document (default: <project>/"+config.FileName+")")
	fs.StringVar(&p.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&p.logJSON, "log-json", false, "Write JSON log lines instead of console output")
}

// setup validates the flags and configures logging on stderr.
func (p *projectFlags) setup(stderr io.Writer) error {
	monitoring.SetOutput(stderr, p.logJSON)
	if err := monitoring.SetLevel(p.logLevel); err != nil {
		return err
	}
	if p.project == "" {
		return errors.New("-project is required")
	}
	p.project = filepath.Clean(p.project)
	return nil
}

func (p *projectFlags) loadConfig() (*config.Handle, error) {
	path := p.configPath
	if path == "" {
		path = filepath.Join(p.project, config.FileName)
	}
	return config.LoadOrDefault(fsys, path)
}

func (p *projectFlags) experimentList() ([]string, error) {
	if p.experiments == "" {
		exps, err := pipeline.ListExperiments(fsys, p.project)
		if err != nil {
			return nil, err
		}
		if len(exps) == 0 {
			return nil, fmt.Errorf("no experiments found in %s", p.project)
		}
		return exps, nil
	}
	var out []string
	for _, e := range strings.Split(p.experiments, ",") {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		if err := security.ValidateName(e); err != nil {
			return nil, fmt.Errorf("-experiments: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// engineFlags select the detection engine.
type engineFlags struct {
	kind string
	cmd  string
	addr string
}

func (e *engineFlags) register(fs *flag.FlagSet, defaultKind string) {
	fs.StringVar(&e.kind, "engine", defaultKind, "Detection engine: exec, grpc or synthetic")
	fs.StringVar(&e.cmd, "engine-cmd", "", "Command line of the exec engine")
	fs.StringVar(&e.addr, "engine-addr", "", "Address of the gRPC engine")
}

// open returns the engine and a function releasing it.
func (e *engineFlags) open() (engine.Engine, func(), error) {
	noop := func() {}
	switch e.kind {
	case "exec":
		if e.cmd == "" {
			return nil, noop, errors.New("-engine exec needs -engine-cmd")
		}
		eng, err := engine.NewExecEngine(e.cmd)
		return eng, noop, err
	case "grpc":
		if e.addr == "" {
			return nil, noop, errors.New("-engine grpc needs -engine-addr")
		}
		eng, err := engine.DialGRPC(e.addr)
		if err != nil {
			return nil, noop, err
		}
		return eng, func() { eng.Close() }, nil
	case "synthetic":
		return engine.NewSyntheticEngine(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown engine %q", e.kind)
	}
}

// startDebugServer serves the debug mux on addr until ctx ends. An empty
// addr disables it.
func startDebugServer(ctx context.Context, addr string, state httputil.StateFunc) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debug listener: %w", err)
	}
	srv := &http.Server{Handler: httputil.NewDebugMux(state), ReadHeaderTimeout: 5 * time.Second}
	log := monitoring.Component("http")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("debug server failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("debug server listening")

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return stop, nil
}
