// Package task runs one unit of work under a wall-clock budget while polling
// an external cancellation probe.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/spt.report/internal/monitoring"
	"github.com/banshee-data/spt.report/internal/timeutil"
)

// DefaultPollInterval is how often the supervisor checks the task, the
// deadline and the cancellation probe.
const DefaultPollInterval = time.Second

// Func is a unit of work. It must return promptly once ctx is done.
type Func func(ctx context.Context) error

// CancelProbe reports whether the operator asked to stop. A nil probe never
// cancels.
type CancelProbe func() bool

// Outcome is how supervision of a task ended.
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timeout"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one supervised execution. Err carries the task's own
// error on completion, ErrTimeout on timeout and the context error when the
// caller's context ended first.
type Result struct {
	Outcome Outcome
	Err     error
	Ticks   int
	Elapsed time.Duration
}

// OK reports a natural completion without error.
func (r Result) OK() bool { return r.Outcome == Completed && r.Err == nil }

// Runner supervises tasks. The zero value uses the real clock, a one second
// poll interval and no progress output.
type Runner struct {
	Clock        timeutil.Clock
	PollInterval time.Duration
	// Progress receives one "." per poll tick.
	Progress io.Writer
}

// NewRunner returns a Runner with default settings writing progress to w.
func NewRunner(w io.Writer) *Runner {
	return &Runner{Clock: timeutil.RealClock{}, PollInterval: DefaultPollInterval, Progress: w}
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) interval() time.Duration {
	if r.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return r.PollInterval
}

// Run reports whether fn completed within timeout without being cancelled.
// A task error still counts as completion; use Execute to inspect it.
func (r *Runner) Run(ctx context.Context, fn Func, timeout time.Duration, probe CancelProbe) bool {
	return r.Execute(ctx, fn, timeout, probe).Outcome == Completed
}

// Execute starts fn on its own goroutine and supervises it until it returns,
// the budget is spent, probe reports cancellation, or ctx is done. The
// context handed to fn is cancelled whenever supervision gives up, so
// cooperative tasks stop instead of running on unobserved. A non-positive
// timeout means no budget.
func (r *Runner) Execute(ctx context.Context, fn Func, timeout time.Duration, probe CancelProbe) Result {
	log := monitoring.Component("task")
	clock := r.clock()
	start := clock.Now()

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panicked: %v", p)
			}
			done <- err
		}()
		err = fn(taskCtx)
	}()

	ticker := clock.NewTicker(r.interval())
	defer ticker.Stop()

	res := Result{}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Elapsed = clock.Since(start)
		monitoring.TaskDuration.Observe(res.Elapsed.Seconds())
		return res
	}

	for {
		select {
		case err := <-done:
			res.Err = err
			if ctx.Err() != nil {
				return finish(Cancelled)
			}
			return finish(Completed)
		case <-ctx.Done():
			log.Warn().Int("ticks", res.Ticks).Msg("task cancelled by caller")
			res.Err = ctx.Err()
			return finish(Cancelled)
		case <-ticker.C():
			res.Ticks++
			if r.Progress != nil {
				_, _ = io.WriteString(r.Progress, ".")
			}
			// Prefer a result that arrived during the same tick.
			select {
			case err := <-done:
				res.Err = err
				return finish(Completed)
			default:
			}
			if probe != nil && probe() {
				log.Warn().Int("ticks", res.Ticks).Msg("task cancelled by operator")
				return finish(Cancelled)
			}
			if timeout > 0 && clock.Since(start) >= timeout {
				log.Error().
					Dur("timeout", timeout).
					Int("ticks", res.Ticks).
					Msg("task exceeded its time budget")
				res.Err = ErrTimeout
				return finish(TimedOut)
			}
		}
	}
}

// ErrTimeout is set on results whose task exceeded its budget.
var ErrTimeout = errors.New("task timed out")
