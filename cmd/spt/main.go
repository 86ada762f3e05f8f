// Command spt runs single-particle-tracking analyses over a project
// directory: recording processing, squares generation, project compilation
// and parameter sweeps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "process":
		err = runProcess(ctx, rest, stdout, stderr)
	case "squares":
		err = runSquares(rest, stdout, stderr)
	case "compile":
		err = runCompile(rest, stdout, stderr)
	case "sweep":
		err = runSweep(ctx, rest, stdout, stderr)
	case "fit":
		err = runFit(rest, stdout, stderr)
	case "status":
		err = runStatus(ctx, rest, stdout, stderr)
	case "serve-engine":
		err = runServeEngine(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, pipeline.ErrCancelled), errors.Is(err, context.Canceled):
		fmt.Fprintf(stderr, "spt %s: cancelled\n", command)
		return 130
	default:
		fmt.Fprintf(stderr, "spt %s: %v\n", command, err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `spt - single particle tracking analysis

Usage: spt <command> [options]

Commands:
  process       Run the detection engine over every recording of the project
  squares       Generate squares for processed experiments
  compile       Concatenate experiment tables into the project root
  sweep         Run a one-factor-at-a-time parameter sweep from a TOML file
  fit           Fit Tau to a column of track durations
  status        Show the progress of a running sweep
  serve-engine  Serve a detection engine over gRPC
  version       Show the spt version
  help          Show this help message

Common Flags:
  -project <dir>        Project directory (required)
  -experiments <list>   Comma-separated experiments (default: all with an
                        Experiment Info.csv)
  -config <file>        Configuration document
                        (default: <project>/Paint Configuration.json)
  -engine <kind>        exec, grpc or synthetic (default: exec)
  -engine-cmd <cmd>     Command line of the exec engine
  -engine-addr <addr>   Address of the gRPC engine
  -debug-listen <addr>  Serve /debug/ and /metrics on addr
  -log-level <level>    debug, info, warn or error (default: info)

Examples:
  # Process a project with an external engine
  spt process -project ~/data/P1 -engine-cmd "python3 detect.py"

  # Sweep the detection threshold, watching progress on :6060
  spt sweep -project ~/data/P1 -spec sweep.toml -engine grpc -engine-addr localhost:50051 -debug-listen localhost:6060
  spt status -addr localhost:6060`)
}
