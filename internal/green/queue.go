package green

import (
	"fmt"
	"sync"
)

// runQueue is the FIFO of runnable tasks for one Run, plus the bookkeeping
// needed to decide when the run is over.
type runQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*Runtime
	workers int
	idle    int
	live    int
	spawned uint64
	done    bool
	err     error

	tasks    map[*Runtime]struct{}
	failures []error
}

func newRunQueue(workers int) *runQueue {
	q := &runQueue{
		workers: workers,
		tasks:   make(map[*Runtime]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// admit registers a new live task.
func (q *runQueue) admit(rt *Runtime, max int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > 0 && q.live >= max {
		return fmt.Errorf("spawning %q: %w (max %d)", rt.name, ErrTooManyTasks, max)
	}
	q.live++
	q.spawned++
	q.tasks[rt] = struct{}{}
	return nil
}

// exit retires a task. The run is complete when no task is left.
func (q *runQueue) exit(rt *Runtime, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, rt)
	if err != nil {
		q.failures = append(q.failures, err)
	}
	q.live--
	if q.live == 0 {
		q.done = true
		q.cond.Broadcast()
	}
}

func (q *runQueue) push(rt *Runtime) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.items = append(q.items, rt)
	q.cond.Signal()
}

// pop blocks until a task is runnable. It returns nil, nil once every task
// has exited, and the stop reason if the run was cut short.
func (q *runQueue) pop() (*Runtime, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.done {
		q.idle++
		if q.idle == q.workers && q.live > 0 {
			q.idle--
			q.done = true
			q.err = fmt.Errorf("%w: %d tasks blocked with nothing runnable", ErrDeadlock, q.live)
			q.cond.Broadcast()
			break
		}
		q.cond.Wait()
		q.idle--
	}
	if q.done {
		return nil, q.err
	}
	rt := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return rt, nil
}

// stop ends the run early.
func (q *runQueue) stop(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.done = true
	q.err = err
	q.cond.Broadcast()
}

func (q *runQueue) remaining() []*Runtime {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Runtime, 0, len(q.tasks))
	for rt := range q.tasks {
		out = append(out, rt)
	}
	return out
}

func (q *runQueue) snapshot() (queued, live int, spawned uint64, failures []error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), q.live, q.spawned, append([]error(nil), q.failures...)
}
