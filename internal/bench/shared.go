package bench

import (
	"fmt"
	"time"

	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/tasksync"
)

// SharedConfig sizes the shared channel workload.
type SharedConfig struct {
	Size    int `yaml:"size"`
	Workers int `yaml:"workers"`
	Bytes   int `yaml:"bytes"`
}

// DefaultShared matches the usual small shared run.
var DefaultShared = SharedConfig{Size: 10000, Workers: 4, Bytes: 100}

type requestKind int

const (
	reqBytes requestKind = iota
	reqGetCount
	reqStop
)

type request struct {
	kind  requestKind
	bytes int
}

// server sums byte counts until it is told to stop, then reports the
// total.
func server(t *sched.Task, requests *tasksync.Chan[request], responses *tasksync.Chan[int]) {
	count := 0
	for {
		req, ok := requests.Recv(t)
		if !ok || req.kind == reqStop {
			break
		}
		switch req.kind {
		case reqBytes:
			count += req.bytes
		case reqGetCount:
			responses.Send(t, count)
		}
	}
	responses.Send(t, count)
}

// Shared has cfg.Workers tasks send Size/Workers requests each to a single
// server task over one channel.
func Shared(t *sched.Task, cfg SharedConfig) (Result, error) {
	if cfg.Workers < 1 || cfg.Size < 0 || cfg.Bytes < 0 {
		return Result{}, fmt.Errorf("invalid shared config %+v", cfg)
	}

	requests := tasksync.NewChan[request]()
	responses := tasksync.NewChan[int]()
	perWorker := cfg.Size / cfg.Workers
	start := time.Now()

	futures := make([]*tasksync.Future[error], 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		f, err := tasksync.Spawn(t, func(t *sched.Task) error {
			for j := 0; j < perWorker; j++ {
				if err := requests.Send(t, request{kind: reqBytes, bytes: cfg.Bytes}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("spawning worker %d: %w", i, err)
		}
		futures = append(futures, f)
	}
	if err := t.Spawn(func(t *sched.Task) { server(t, requests, responses) }); err != nil {
		return Result{}, fmt.Errorf("spawning server: %w", err)
	}

	for i, f := range futures {
		sendErr, err := f.Get(t)
		if err == nil {
			err = sendErr
		}
		if err != nil {
			return Result{}, fmt.Errorf("worker %d: %w", i, err)
		}
	}
	if err := requests.Send(t, request{kind: reqStop}); err != nil {
		return Result{}, err
	}
	count, ok := responses.Recv(t)
	if !ok {
		return Result{}, fmt.Errorf("server exited without reporting a count")
	}

	res := Result{
		Name:     "shared",
		Messages: perWorker * cfg.Workers,
		Elapsed:  time.Since(start),
		Count:    count,
	}
	if want := cfg.Bytes * perWorker * cfg.Workers; count != want {
		return res, fmt.Errorf("server counted %d bytes, want %d", count, want)
	}
	return res, nil
}
