package bench

import (
	"fmt"
	"time"

	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/tasksync"
)

// RingConfig sizes the ring workload.
type RingConfig struct {
	Tasks    int `yaml:"tasks"`
	Messages int `yaml:"messages"`
}

// DefaultRing matches the usual small ring run.
var DefaultRing = RingConfig{Tasks: 10, Messages: 100}

// pipe is an unbounded stack guarded by a task mutex and condition.
type pipe struct {
	mu   tasksync.Mutex
	cond *tasksync.Cond
	msgs []int
}

func newPipe() *pipe {
	p := &pipe{}
	p.cond = tasksync.NewCond(&p.mu)
	return p
}

func (p *pipe) send(t *sched.Task, msg int) {
	t.MaybeYield()
	p.mu.Lock(t)
	p.msgs = append(p.msgs, msg)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *pipe) recv(t *sched.Task) int {
	t.MaybeYield()
	p.mu.Lock(t)
	for len(p.msgs) == 0 {
		p.cond.Wait(t)
	}
	msg := p.msgs[len(p.msgs)-1]
	p.msgs = p.msgs[:len(p.msgs)-1]
	p.mu.Unlock()
	return msg
}

func ringMember(t *sched.Task, i, count int, out, in *pipe) {
	for j := 0; j < count; j++ {
		out.send(t, i*j)
		in.recv(t)
	}
}

// Ring connects cfg.Tasks tasks in a cycle, the calling task being member
// 0. Every member sends then receives cfg.Messages messages.
func Ring(t *sched.Task, cfg RingConfig) (Result, error) {
	if cfg.Tasks < 1 {
		return Result{}, fmt.Errorf("ring needs at least one task, got %d", cfg.Tasks)
	}
	if cfg.Messages < 0 {
		return Result{}, fmt.Errorf("negative message count %d", cfg.Messages)
	}

	start := time.Now()
	first := newPipe()
	out := first

	futures := make([]*tasksync.Future[struct{}], 0, cfg.Tasks-1)
	for i := 1; i < cfg.Tasks; i++ {
		prev, in := out, newPipe()
		f, err := tasksync.Spawn(t, func(t *sched.Task) struct{} {
			ringMember(t, i, cfg.Messages, prev, in)
			return struct{}{}
		})
		if err != nil {
			return Result{}, fmt.Errorf("spawning ring member %d: %w", i, err)
		}
		futures = append(futures, f)
		out = in
	}

	ringMember(t, 0, cfg.Messages, out, first)

	for i, f := range futures {
		if _, err := f.Get(t); err != nil {
			return Result{}, fmt.Errorf("ring member %d: %w", i+1, err)
		}
	}
	return Result{
		Name:     "ring",
		Messages: cfg.Tasks * cfg.Messages,
		Elapsed:  time.Since(start),
	}, nil
}
