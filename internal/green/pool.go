// Package green is a cooperative M:N task scheduler. Tasks are multiplexed
// onto a fixed set of worker threads and only switch at explicit yield,
// block and exit points, through the scheduler installed in their slot.
package green

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/majorcontext/schedtrace/internal/log"
	"github.com/majorcontext/schedtrace/internal/sched"
)

// Pool runs task trees on a fixed set of workers.
type Pool struct {
	cfg      Config
	threads  *threadRegistry
	switches atomic.Uint64
	seq      atomic.Uint64

	mu      sync.Mutex
	running bool
	q       *runQueue
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	// Workers is the configured number of worker threads.
	Workers int
	// Threads is the number of worker threads currently alive.
	Threads int
	// Live counts tasks admitted and not yet exited, whether running,
	// runnable or blocked.
	Live int
	// Queued counts runnable tasks waiting for a worker; a subset of Live.
	Queued int
	// Spawned is the total number of tasks admitted in the run.
	Spawned uint64
	// Switches counts the times a worker resumed a task.
	Switches uint64
}

// NewPool creates a pool. Invalid config values are replaced by defaults.
func NewPool(cfg Config) *Pool {
	return &Pool{
		cfg:     cfg.normalize(),
		threads: newThreadRegistry(),
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Run executes body as the root task and returns once every task spawned
// from it has exited. Task failures are joined into the returned error. A
// deadlock or cancelled ctx ends the run early; tasks still parked at that
// point are unwound and do not run again.
func (p *Pool) Run(ctx context.Context, body func(*sched.Task)) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPoolRunning
	}
	q := newRunQueue(p.cfg.Workers)
	p.running = true
	p.q = q
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	log.Debug("starting green pool", "workers", p.cfg.Workers, "max_tasks", p.cfg.MaxTasks)

	if _, err := p.spawn(q, sched.TaskOpts{Name: "main"}, body); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		q.stop(fmt.Errorf("run cancelled: %w", context.Cause(ctx)))
	})
	defer stop()

	var eg errgroup.Group
	for i := 0; i < p.cfg.Workers; i++ {
		w := newWorker(p, q)
		eg.Go(func() error {
			defer p.threads.release(w.id)
			return w.loop()
		})
	}
	runErr := eg.Wait()
	if runErr != nil {
		n := p.reap(q, runErr)
		log.Warn("green pool stopped early", "error", runErr, "unwound", n)
	}

	_, _, spawned, failures := q.snapshot()
	log.Debug("green pool finished", "spawned", spawned, "failed", len(failures))
	return errors.Join(append([]error{runErr}, failures...)...)
}

// Stats reports on the current or most recent run.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	q := p.q
	p.mu.Unlock()

	s := Stats{Workers: p.cfg.Workers, Threads: p.threads.active(), Switches: p.switches.Load()}
	if q != nil {
		s.Queued, s.Live, s.Spawned, _ = q.snapshot()
	}
	return s
}

func (p *Pool) spawn(q *runQueue, opts sched.TaskOpts, body func(*sched.Task)) (*Runtime, error) {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("task-%d", p.seq.Add(1))
	}
	stack := opts.StackSize
	if stack == 0 {
		stack = p.cfg.StackSize
	}
	rt := &Runtime{
		pool:   p,
		q:      q,
		task:   sched.NewTask(name),
		name:   name,
		stack:  stack,
		onExit: opts.OnExit,
		resume: make(chan *worker, 1),
	}
	if err := q.admit(rt, p.cfg.MaxTasks); err != nil {
		return nil, err
	}
	rt.task.PutScheduler(rt)
	rt.start(body)
	q.push(rt)
	return rt, nil
}

func (p *Pool) retire(q *runQueue, rt *Runtime, err error) {
	if err != nil {
		log.Warn("task failed", "task", rt.name, "error", err)
	}
	q.exit(rt, err)
}

// reap unwinds tasks left parked when a run ends early. No worker is alive
// at this point, so every remaining task goroutine is waiting on resume.
func (p *Pool) reap(q *runQueue, reason error) int {
	tasks := q.remaining()
	for _, rt := range tasks {
		rt.abort.Store(&abortReason{err: reason})
		select {
		case rt.resume <- nil:
		default:
		}
	}
	return len(tasks)
}
