package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/banshee-data/spt.report/internal/monitoring"
)

const waitDelay = 2 * time.Second

// ExecEngine runs an external command per recording. The request is written
// to the command's stdin as JSON and a Result is read from its stdout. The
// process is killed when ctx is cancelled.
type ExecEngine struct {
	Command string
	Args    []string
	Env     []string
}

// NewExecEngine parses a command line such as "python3 detect.py --fast".
func NewExecEngine(commandLine string) (*ExecEngine, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty engine command", ErrEngine)
	}
	return &ExecEngine{Command: fields[0], Args: fields[1:]}, nil
}

// Detect implements Engine.
func (e *ExecEngine) Detect(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrEngine, err)
	}

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	// Grandchildren may hold stdout open after the kill.
	cmd.WaitDelay = waitDelay
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	monitoring.Component("engine").Debug().
		Str("command", e.Command).
		Str("recording", req.Recording).
		Msg("starting engine process")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEngine, req.Recording, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrEngine, req.Recording, err, lastLine(stderr.String()))
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("%w: %s: decode result: %v", ErrEngine, req.Recording, err)
	}
	return &res, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
