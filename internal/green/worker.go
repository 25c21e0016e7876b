package green

import (
	"runtime/debug"

	"github.com/majorcontext/schedtrace/internal/sched"
)

type parkKind int

const (
	parkYield parkKind = iota
	parkBlock
	parkExit
)

// parkMsg is what a task hands back to its worker when it stops running.
type parkMsg struct {
	kind  parkKind
	times int
	fn    func(*sched.BlockedTask) bool
	err   error
}

// worker is one thread of the pool. A task only runs between a worker
// sending on its resume channel and the task sending on worker.park.
type worker struct {
	id   uint64
	pool *Pool
	q    *runQueue
	park chan parkMsg
}

func newWorker(p *Pool, q *runQueue) *worker {
	w := &worker{pool: p, q: q, park: make(chan parkMsg)}
	w.id = p.threads.acquire(w)
	return w
}

// ThreadID implements sched.LocalIO.
func (w *worker) ThreadID() uint64 {
	return w.id
}

func (w *worker) loop() error {
	for {
		rt, err := w.q.pop()
		if err != nil {
			return err
		}
		if rt == nil {
			return nil
		}
		w.run(rt)
	}
}

func (w *worker) run(rt *Runtime) {
	w.pool.switches.Add(1)
	rt.resume <- w
	msg := <-w.park
	switch msg.kind {
	case parkYield:
		w.q.push(rt)
	case parkBlock:
		w.block(rt, msg)
	case parkExit:
		w.pool.retire(w.q, rt, msg.err)
	}
}

// block offers each handle to the deschedule callback. A false return or a
// panic means the task must not stay blocked; whoever claims the latch is
// responsible for making it runnable again.
func (w *worker) block(rt *Runtime, msg parkMsg) {
	for _, b := range sched.NewBlocked(rt.task, msg.times) {
		stay, err := w.offer(rt, msg.fn, b)
		if err != nil {
			rt.abort.Store(&abortReason{err: err})
		}
		if err != nil || !stay {
			if b.Claim() {
				w.q.push(rt)
			}
			return
		}
	}
}

func (w *worker) offer(rt *Runtime, fn func(*sched.BlockedTask) bool, b *sched.BlockedTask) (stay bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{Task: rt.name, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(b), nil
}
