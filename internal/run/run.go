// Package run executes a workload on a fresh green pool with every task
// instrumented, and packages the captured trace for storage and export.
package run

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/majorcontext/schedtrace/internal/bench"
	"github.com/majorcontext/schedtrace/internal/green"
	"github.com/majorcontext/schedtrace/internal/id"
	"github.com/majorcontext/schedtrace/internal/instrument"
	"github.com/majorcontext/schedtrace/internal/log"
	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/trace"
)

// ErrUnknownWorkload is returned for a workload name not in bench.Workloads.
var ErrUnknownWorkload = errors.New("unknown workload")

// State is how a run ended.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Options configures a run.
type Options struct {
	Workload string
	Pool     green.Config
	Ring     bench.RingConfig
	Shared   bench.SharedConfig
	Fanout   bench.FanoutConfig
}

// Params returns the parameters of the selected workload.
func (o Options) Params() map[string]int {
	switch o.Workload {
	case "ring":
		return map[string]int{"tasks": o.Ring.Tasks, "messages": o.Ring.Messages}
	case "shared":
		return map[string]int{"size": o.Shared.Size, "workers": o.Shared.Workers, "bytes": o.Shared.Bytes}
	case "fanout":
		return map[string]int{"tasks": o.Fanout.Tasks}
	}
	return nil
}

// Outcome is the result of one run.
type Outcome struct {
	State  State
	Trace  *trace.File
	Result bench.Result
	Stats  green.Stats
	Err    error
}

// Execute runs opts.Workload as the root task of a new pool. The trace is
// read once every task has exited, so it includes tasks that outlive the
// root. A failed run still returns an Outcome holding whatever was traced;
// the error is both returned and kept in Outcome.Err.
func Execute(ctx context.Context, opts Options) (*Outcome, error) {
	if !slices.Contains(bench.Workloads, opts.Workload) {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownWorkload, opts.Workload, bench.Workloads)
	}

	runID := id.NewRunID()
	log.SetRunID(runID)
	defer log.ClearRunID()

	pool := green.NewPool(opts.Pool)
	log.Info("starting run", "workload", opts.Workload, "workers", pool.Config().Workers)

	var (
		events    *trace.Log
		result    bench.Result
		workErr   error
		wallStart = time.Now()
	)
	poolErr := pool.Run(ctx, func(root *sched.Task) {
		events = instrument.Session[*green.Runtime](root, func(t *sched.Task) {
			result, workErr = workload(t, opts)
		})
	})
	elapsed := time.Since(wallStart)

	f := &trace.File{
		Metadata: trace.Metadata{
			RunID:    runID,
			Workload: opts.Workload,
			Params:   opts.Params(),
			Workers:  pool.Config().Workers,
			Started:  wallStart,
			Elapsed:  elapsed,
		},
	}
	if events != nil {
		f.Metadata.Started = events.Start()
		f.Events = events.Snapshot()
	}

	out := &Outcome{
		State:  StateCompleted,
		Trace:  f,
		Result: result,
		Stats:  pool.Stats(),
		Err:    errors.Join(workErr, poolErr),
	}
	if out.Err != nil {
		out.State = StateFailed
		f.Metadata.Error = out.Err.Error()
		log.Warn("run failed", "workload", opts.Workload, "error", out.Err)
		return out, out.Err
	}
	log.Info("run completed", "workload", opts.Workload, "events", len(f.Events), "elapsed", elapsed)
	return out, nil
}

func workload(t *sched.Task, opts Options) (bench.Result, error) {
	switch opts.Workload {
	case "ring":
		return bench.Ring(t, opts.Ring)
	case "shared":
		return bench.Shared(t, opts.Shared)
	default:
		return bench.Fanout(t, opts.Fanout)
	}
}
